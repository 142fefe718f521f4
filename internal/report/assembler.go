// Package report renders generated sections into a deck and stores it.
package report

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"icdeck/internal/faults"
	"icdeck/internal/logging"
)

// DeckSections is the number of sections a deck is assembled from.
const DeckSections = 3

const keyTimeLayout = "2006-01-02_15-04-05"

// ErrExists is returned by a Sink that refuses to overwrite a key.
var ErrExists = errors.New("object already exists")

// Sink stores rendered decks. Put must fail with ErrExists instead of
// replacing an existing object.
type Sink interface {
	Put(ctx context.Context, key, contentType string, body []byte) error
	Location(key string) string
}

// Artifact describes a stored deck.
type Artifact struct {
	ClientID    string
	Key         string
	Location    string
	GeneratedAt time.Time
	Bytes       int
}

type Assembler struct {
	sink   Sink
	prefix string
	now    func() time.Time
	logger *zap.Logger
}

type Option func(*Assembler)

func WithLogger(l *zap.Logger) Option {
	return func(a *Assembler) { a.logger = logging.OrNop(l) }
}

// WithClock replaces time.Now for key generation.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

func NewAssembler(sink Sink, prefix string, opts ...Option) *Assembler {
	a := &Assembler{
		sink:   sink,
		prefix: prefix,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Key returns the object key for a deck generated at t.
func (a *Assembler) Key(clientID string, t time.Time) string {
	name := fmt.Sprintf("IC_deck_%s_%s.md", clientID, t.Format(keyTimeLayout))
	if a.prefix == "" {
		return name
	}
	return path.Join(a.prefix, name)
}

// Assemble renders the ordered sections for clientID and stores the result
// under a timestamp-qualified key. If the key is taken the timestamp is
// advanced a second at a time.
func (a *Assembler) Assemble(ctx context.Context, clientID string, secs []Section) (Artifact, error) {
	if clientID == "" {
		return Artifact{}, faults.Configuration("report.Assemble", "client id is empty")
	}
	if len(secs) != DeckSections {
		return Artifact{}, fmt.Errorf("deck for %s needs %d sections, got %d", clientID, DeckSections, len(secs))
	}

	generatedAt := a.now()
	body := Render(clientID, generatedAt, secs)

	const maxAttempts = 10
	for i := 0; i < maxAttempts; i++ {
		key := a.Key(clientID, generatedAt.Add(time.Duration(i)*time.Second))
		err := a.sink.Put(ctx, key, "text/markdown; charset=utf-8", body)
		if errors.Is(err, ErrExists) {
			continue
		}
		if err != nil {
			return Artifact{}, fmt.Errorf("failed to store deck %s: %w", key, err)
		}

		art := Artifact{
			ClientID:    clientID,
			Key:         key,
			Location:    a.sink.Location(key),
			GeneratedAt: generatedAt,
			Bytes:       len(body),
		}
		a.logger.Info("deck stored",
			zap.String("client", clientID),
			zap.String("location", art.Location),
			zap.Int("bytes", art.Bytes))
		return art, nil
	}
	return Artifact{}, fmt.Errorf("failed to find a free key for client %s", clientID)
}
