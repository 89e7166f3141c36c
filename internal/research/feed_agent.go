package research

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/mmcdole/gofeed"

	"newsdesk/internal/domain/candidate"
	"newsdesk/pkg/errors"
)

// FeedDocument is a raw RSS/Atom/JSON feed body delivered by a collaborator
type FeedDocument struct {
	SourceID string
	Topic    string
	Regions  []string
	Body     []byte
}

// FeedSource supplies feed documents. Fetching is its concern, not ours.
type FeedSource interface {
	Documents(ctx context.Context, bc BriefContext) ([]FeedDocument, error)
}

// StaticFeedSource serves fixed documents keyed by topic
type StaticFeedSource map[string][]FeedDocument

func (s StaticFeedSource) Documents(_ context.Context, bc BriefContext) ([]FeedDocument, error) {
	var out []FeedDocument
	for _, topic := range bc.Topics {
		out = append(out, s[topic]...)
	}
	return out, nil
}

// FeedAgent turns feed documents into raw candidates, newest first
type FeedAgent struct {
	id     string
	source FeedSource
}

// NewFeedAgent creates a feed-backed agent
func NewFeedAgent(id string, source FeedSource) *FeedAgent {
	return &FeedAgent{id: id, source: source}
}

func (a *FeedAgent) ID() string { return a.id }

func (a *FeedAgent) Invoke(ctx context.Context, bc BriefContext, topK int) ([]candidate.Raw, error) {
	docs, err := a.source.Documents(ctx, bc)
	if err != nil {
		return nil, errors.Wrap(err, "load feed documents")
	}

	parser := gofeed.NewParser()
	var out []candidate.Raw
	var errs errors.MultiError

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		feed, err := parser.Parse(bytes.NewReader(doc.Body))
		if err != nil {
			errs.Add(errors.Wrapf(err, "parse feed from %s", doc.SourceID))
			continue
		}

		for _, it := range feed.Items {
			if it == nil || it.Title == "" {
				continue
			}
			out = append(out, candidate.Raw{
				SourceID:    doc.SourceID,
				Title:       it.Title,
				Summary:     it.Description,
				URL:         it.Link,
				PublishedAt: itemTime(it),
				TopicHint:   doc.Topic,
				Regions:     doc.Regions,
			})
		}
	}

	if len(out) == 0 && errs.HasErrors() {
		return nil, errs.ToError()
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PublishedAt.After(out[j].PublishedAt)
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func itemTime(it *gofeed.Item) time.Time {
	switch {
	case it.PublishedParsed != nil:
		return it.PublishedParsed.UTC()
	case it.UpdatedParsed != nil:
		return it.UpdatedParsed.UTC()
	default:
		return time.Time{}
	}
}
