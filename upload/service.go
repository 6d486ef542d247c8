// Package upload validates and stores the image and voice blobs of media
// messages. Only the reference travels through the hub afterwards.
package upload

import (
	"chat-hub/contract"
	"chat-hub/domain"
	"chat-hub/errors"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// PublicPrefix is where the HTTP layer serves the upload directory.
const PublicPrefix = "/uploads/"

const messagesDir = "messages"

type kind struct {
	name       string
	extensions []string
	// accepts tells whether the sniffed content matches the kind.
	accepts func(*mimetype.MIME) bool
	body    func(ref string) domain.Body
}

var (
	imageKind = kind{
		name:       "image",
		extensions: []string{".jpg", ".jpeg", ".png", ".gif", ".webp"},
		accepts:    func(m *mimetype.MIME) bool { return hasPrefix(m, "image/") },
		body:       func(ref string) domain.Body { return domain.ImageRef(ref) },
	}
	// Browsers record voice as webm, which is sniffed as video.
	voiceKind = kind{
		name:       "voice",
		extensions: []string{".webm", ".mp3", ".wav", ".ogg", ".m4a"},
		accepts: func(m *mimetype.MIME) bool {
			return hasPrefix(m, "audio/") || m.Is("video/webm") || m.Is("application/ogg")
		},
		body: func(ref string) domain.Body { return domain.AudioRef(ref) },
	}
)

type Service struct {
	log     *slog.Logger
	store   contract.IConversationStore
	root    string
	maxSize int64
}

// NewService stores blobs under root/messages. maxSize is in bytes.
func NewService(log *slog.Logger, store contract.IConversationStore, root string, maxSize int64) *Service {
	return &Service{log: log, store: store, root: root, maxSize: maxSize}
}

// Root is the directory served under PublicPrefix.
func (s *Service) Root() string {
	return s.root
}

func (s *Service) StoreImage(ctx context.Context, conversationID uuid.UUID, senderID, filename string, r io.Reader) (domain.MessageView, error) {
	return s.persist(ctx, imageKind, conversationID, senderID, filename, r)
}

func (s *Service) StoreVoice(ctx context.Context, conversationID uuid.UUID, senderID, filename string, r io.Reader) (domain.MessageView, error) {
	return s.persist(ctx, voiceKind, conversationID, senderID, filename, r)
}

func (s *Service) persist(ctx context.Context, k kind, conversationID uuid.UUID, senderID, filename string, r io.Reader) (domain.MessageView, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !lo.Contains(k.extensions, ext) {
		return domain.MessageView{}, fmt.Errorf("%w: %s extension %q", errors.ErrUnsupportedMedia, k.name, ext)
	}
	ok, err := s.store.IsParticipant(ctx, conversationID, senderID)
	if err != nil {
		return domain.MessageView{}, err
	}
	if !ok {
		return domain.MessageView{}, errors.ErrUnauthorized
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxSize+1))
	if err != nil {
		return domain.MessageView{}, fmt.Errorf("cannot read upload: %w", err)
	}
	if int64(len(data)) > s.maxSize {
		return domain.MessageView{}, errors.ErrFileTooLarge
	}
	if len(data) == 0 {
		return domain.MessageView{}, fmt.Errorf("%w: empty file", errors.ErrInvalidArgument)
	}
	detected := mimetype.Detect(data)
	if !k.accepts(detected) {
		return domain.MessageView{}, fmt.Errorf("%w: %s content is %s", errors.ErrUnsupportedMedia, k.name, detected.String())
	}

	name := uuid.NewString() + ext
	dir := filepath.Join(s.root, messagesDir)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return domain.MessageView{}, err
	}
	target := filepath.Join(dir, name)
	if err = os.WriteFile(target, data, 0o644); err != nil {
		return domain.MessageView{}, fmt.Errorf("cannot write upload: %w", err)
	}

	ref := path.Join(PublicPrefix, messagesDir, name)
	view, err := s.store.InsertMessage(ctx, domain.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           k.body(ref),
		SentAt:         time.Now().UTC(),
	})
	if err != nil {
		// No message row points to the blob.
		if rmErr := s.Delete(ref); rmErr != nil {
			s.log.Warn("Cannot remove orphan upload", "ref", ref, "error", rmErr)
		}
		return domain.MessageView{}, err
	}
	s.log.Debug("Upload stored", "kind", k.name, "mime", detected.String(), "bytes", len(data), "message_id", view.ID)
	return view, nil
}

// Delete removes the blob behind a reference returned by StoreImage or
// StoreVoice, or the orphan of a failed message insert. It returns
// ErrNotFound when the file is already gone.
func (s *Service) Delete(ref string) error {
	name, ok := strings.CutPrefix(ref, path.Join(PublicPrefix, messagesDir)+"/")
	if !ok || name == "" || name != filepath.Base(name) {
		return fmt.Errorf("%w: %q is not an upload reference", errors.ErrInvalidArgument, ref)
	}
	err := os.Remove(filepath.Join(s.root, messagesDir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return errors.ErrNotFound
	}
	return err
}

func hasPrefix(m *mimetype.MIME, prefix string) bool {
	for ; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), prefix) {
			return true
		}
	}
	return false
}
