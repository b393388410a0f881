// Package metadata loads document metadata for enrichment. Documents are
// stored as flat hashes under <prefix><collection>:<id>; reads are batched
// and fronted by the metadata cache namespace.
package metadata

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mailscope/mailscope/internal/cache"
	"github.com/mailscope/mailscope/internal/domain"
)

// Metadata is the enrichment view of a stored document.
type Metadata struct {
	DocID           string    `json:"doc_id"`
	Collection      string    `json:"collection"`
	Subject         string    `json:"subject"`
	Sender          string    `json:"sender"`
	Recipients      []string  `json:"recipients,omitempty"`
	Date            time.Time `json:"date,omitzero"`
	Body            string    `json:"body,omitempty"`
	AttachmentCount int       `json:"attachment_count"`
	ThreadID        string    `json:"thread_id,omitempty"`
	Tags            []string  `json:"tags,omitempty"`
}

// HasAttachments reports whether the document carries any attachment.
func (m Metadata) HasAttachments() bool { return m.AttachmentCount > 0 }

// store is the consumer interface for metadata reads (ISP).
type store interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
}

// Repo implements usecase/enrich.MetadataLoader.
type Repo struct {
	store store
	cache *cache.Cache
}

// New creates a metadata repository. The cache may be nil.
func New(s store, c *cache.Cache) *Repo {
	return &Repo{store: s, cache: c}
}

// Get loads a single document's metadata.
func (r *Repo) Get(ctx context.Context, collection, docID string) (Metadata, error) {
	if r.cache != nil {
		var md Metadata
		if r.cache.GetJSON(ctx, cache.NSMetadata, cacheKey(collection, docID), &md) {
			return md, nil
		}
	}

	fields, err := r.store.HGetAll(ctx, docKey(collection, docID))
	if err != nil {
		return Metadata{}, fmt.Errorf("metadata %s/%s: %w", collection, docID, err)
	}

	md := parseFields(collection, docID, fields)
	if r.cache != nil {
		r.cache.SetJSON(ctx, cache.NSMetadata, cacheKey(collection, docID), md)
	}
	return md, nil
}

// GetMany loads metadata for several documents of one collection in a
// single batched round trip. Cached entries are served from the cache;
// only the remainder hits the store. The returned map is keyed by doc ID
// and omits documents that no longer exist.
func (r *Repo) GetMany(ctx context.Context, collection string, docIDs []string) (map[string]Metadata, error) {
	out := make(map[string]Metadata, len(docIDs))

	var missing []string
	for _, id := range docIDs {
		if r.cache != nil {
			var md Metadata
			if r.cache.GetJSON(ctx, cache.NSMetadata, cacheKey(collection, id), &md) {
				out[id] = md
				continue
			}
		}
		missing = append(missing, id)
	}

	if len(missing) == 0 {
		return out, nil
	}

	keys := make([]string, len(missing))
	for i, id := range missing {
		keys[i] = docKey(collection, id)
	}

	results, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("metadata batch %s: %w", collection, err)
	}

	for i, fields := range results {
		if len(fields) == 0 {
			continue // deleted since indexing
		}
		md := parseFields(collection, missing[i], fields)
		out[missing[i]] = md
		if r.cache != nil {
			r.cache.SetJSON(ctx, cache.NSMetadata, cacheKey(collection, missing[i]), md)
		}
	}

	return out, nil
}

func docKey(collection, docID string) string {
	return domain.KeyPrefix + collection + ":" + docID
}

func cacheKey(collection, docID string) string {
	return cache.Key(cache.NSMetadata, collection+"/"+docID)
}

func parseFields(collection, docID string, fields map[string]string) Metadata {
	md := Metadata{
		DocID:      docID,
		Collection: collection,
		Subject:    fields["subject"],
		Sender:     fields["sender"],
		ThreadID:   fields["thread_id"],
	}

	// indexed body lives under __content; older records used body
	if v := fields["__content"]; v != "" {
		md.Body = v
	} else {
		md.Body = fields["body"]
	}

	if v := fields["recipients"]; v != "" {
		md.Recipients = splitCSV(v)
	}
	if v := fields["tags"]; v != "" {
		md.Tags = splitCSV(v)
	}
	if v := fields["date"]; v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			md.Date = time.Unix(unix, 0).UTC()
		}
	}
	if v := fields["attachment_count"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			md.AttachmentCount = n
		}
	}

	return md
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
