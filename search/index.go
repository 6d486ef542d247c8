// Package search keeps a full-text index of text messages.
package search

import (
	"chat-hub/contract"
	"chat-hub/domain"
	"chat-hub/domain/event"
	"context"
	"fmt"
	"log/slog"

	"github.com/abadojack/whatlanggo"
	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
)

const (
	fieldID           = "_id"
	fieldConversation = "conversation_id"
	fieldContent      = "content"
	fieldLang         = "lang"
)

var _ contract.Consumer = (*Index)(nil)

// Hit is one matching message, best score first.
type Hit struct {
	MessageID uuid.UUID
	Score     float64
	Lang      string
}

// Index is a permanent consumer of conversation events: new text messages
// are indexed, edits re-indexed and deletions removed. Media messages are
// never indexed since their content is a reference.
type Index struct {
	log    *slog.Logger
	writer *bluge.Writer
}

func NewIndex(log *slog.Logger, writer *bluge.Writer) *Index {
	return &Index{log: log, writer: writer}
}

func (i *Index) Consume(ctx context.Context, e event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch evt := e.(type) {
	case event.ReceiveMessage:
		if evt.Type != domain.MessageTypeText {
			return nil
		}
		return i.index(evt.ID, evt.ConversationID, evt.Content)
	case event.MessageEdited:
		return i.index(evt.ID, evt.ConversationID, evt.Content)
	case event.MessageDeleted:
		return i.writer.Delete(bluge.Identifier(evt.ID.String()))
	default:
		return nil
	}
}

func (i *Index) index(messageID, conversationID uuid.UUID, content string) error {
	lang := whatlanggo.Detect(content).Lang.Iso6391()
	doc := bluge.NewDocument(messageID.String()).
		AddField(bluge.NewKeywordField(fieldConversation, conversationID.String())).
		AddField(bluge.NewTextField(fieldContent, content)).
		AddField(bluge.NewKeywordField(fieldLang, lang).StoreValue())
	if err := i.writer.Update(doc.ID(), doc); err != nil {
		return fmt.Errorf("cannot index message %s: %w", messageID, err)
	}
	i.log.Debug("Message indexed", "message_id", messageID, "lang", lang)
	return nil
}

// Search returns the messages of one conversation matching terms.
func (i *Index) Search(ctx context.Context, conversationID uuid.UUID, terms string, limit int) ([]Hit, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(conversationID.String()).SetField(fieldConversation)).
		AddMust(bluge.NewMatchQuery(terms).SetField(fieldContent))

	matches, err := reader.Search(ctx, bluge.NewTopNSearch(limit, query))
	if err != nil {
		return nil, err
	}

	var hits []Hit
	match, err := matches.Next()
	for err == nil && match != nil {
		hit := Hit{Score: match.Score}
		var parseErr error
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case fieldID:
				hit.MessageID, parseErr = uuid.ParseBytes(value)
			case fieldLang:
				hit.Lang = string(value)
			}
			return parseErr == nil
		})
		if err == nil {
			err = parseErr
		}
		if err != nil {
			return nil, err
		}
		hits = append(hits, hit)
		match, err = matches.Next()
	}
	return hits, err
}
