// Package session routes user events to the extractor, the queue store and
// the synthesizer, one event at a time per user.
package session

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"triagefm/internal/domain"
	"triagefm/internal/extractor"
	"triagefm/internal/keylock"
	"triagefm/internal/storage"
)

// Extractor turns a reference into a content item.
type Extractor interface {
	Extract(ctx context.Context, ref extractor.Reference) (domain.ContentItem, error)
}

// Synthesizer turns a queue snapshot into a script.
type Synthesizer interface {
	Synthesize(ctx context.Context, items []domain.ContentItem) (string, error)
}

// Orchestrator owns the per-user state machine. Content and clear events
// wait for the user's lock; a generate that finds it taken is rejected.
type Orchestrator struct {
	extractor Extractor
	synth     Synthesizer
	store     storage.QueueStore
	locks     *keylock.Table[int64]
	log       logrus.FieldLogger
}

// New creates an Orchestrator.
func New(ex Extractor, synth Synthesizer, store storage.QueueStore, logger logrus.FieldLogger) *Orchestrator {
	return &Orchestrator{
		extractor: ex,
		synth:     synth,
		store:     store,
		locks:     keylock.New[int64](),
		log:       logger.WithField("component", "session"),
	}
}

// Handle processes one event and returns exactly one response.
// Once started, the work runs to completion even if ctx is cancelled, so an
// abandoned request never leaves the queue half updated.
func (o *Orchestrator) Handle(ctx context.Context, userID int64, ev Event) Response {
	ctx = context.WithoutCancel(ctx)
	log := o.log.WithFields(logrus.Fields{"user_id": userID, "event": ev.eventName()})

	switch e := ev.(type) {
	case LinkSubmitted:
		return o.addContent(ctx, log, userID, extractor.Reference{Kind: domain.KindLink, URL: e.URL})
	case DocumentSubmitted:
		return o.addContent(ctx, log, userID, extractor.Reference{
			Kind:     domain.KindDocument,
			Filename: e.Filename,
			MIMEType: e.MIMEType,
			Data:     e.Data,
		})
	case TextSubmitted:
		return o.addContent(ctx, log, userID, extractor.Reference{Kind: domain.KindText, Text: e.Text, Forwarded: e.Forwarded})
	case GenerateTriggered:
		return o.generate(ctx, log, userID)
	case QueueInspectTriggered:
		return o.inspect(ctx, log, userID)
	case QueueClearTriggered:
		return o.clear(ctx, log, userID)
	default:
		log.Errorf("Unhandled event type %T", ev)
		return Response{Kind: ResponseError, Text: msgInternal, ErrorKind: string(domain.KindStore)}
	}
}

func (o *Orchestrator) addContent(ctx context.Context, log logrus.FieldLogger, userID int64, ref extractor.Reference) Response {
	unlock, err := o.locks.Lock(ctx, userID)
	if err != nil {
		return o.failure(ctx, log, userID, fmt.Errorf("failed to acquire session lock: %w", err))
	}
	defer unlock()

	item, err := o.extractor.Extract(ctx, ref)
	if err != nil {
		return o.failure(ctx, log, userID, err)
	}

	size, err := o.store.Append(ctx, userID, item)
	if err != nil {
		return o.failure(ctx, log, userID, err)
	}

	log.WithFields(logrus.Fields{
		"item_id":    item.ID,
		"source":     item.Source,
		"queue_size": size,
	}).Info("Content added to queue")
	return Response{Kind: ResponseAdded, Text: addedMessage(item, size), QueueSize: size}
}

func (o *Orchestrator) generate(ctx context.Context, log logrus.FieldLogger, userID int64) Response {
	unlock, ok := o.locks.TryLock(userID)
	if !ok {
		log.Info("Generate rejected, session busy")
		size, _ := o.store.Size(ctx, userID)
		return Response{Kind: ResponseBusy, Text: msgBusy, QueueSize: size}
	}
	defer unlock()

	items, err := o.store.List(ctx, userID)
	if err != nil {
		return o.failure(ctx, log, userID, err)
	}

	script, err := o.synth.Synthesize(ctx, items)
	if err != nil {
		// The queue is left exactly as it was.
		return o.failure(ctx, log, userID, err)
	}

	if err := o.store.Clear(ctx, userID); err != nil {
		// The script is still delivered; the items stay queued.
		log.WithError(err).Error("Failed to clear queue after generating script")
		return Response{
			Kind:      ResponseScript,
			Text:      fmt.Sprintf("Here is your script for %d item(s). I couldn't clear your queue, use /clear if you don't need the items anymore.", len(items)),
			Script:    script,
			QueueSize: len(items),
		}
	}

	log.WithField("items", len(items)).Info("Script generated, queue cleared")
	return Response{
		Kind:   ResponseScript,
		Text:   fmt.Sprintf("Here is your script for %d item(s):", len(items)),
		Script: script,
	}
}

func (o *Orchestrator) inspect(ctx context.Context, log logrus.FieldLogger, userID int64) Response {
	items, err := o.store.List(ctx, userID)
	if err != nil {
		return o.failure(ctx, log, userID, err)
	}
	return Response{Kind: ResponseListing, Text: listing(items), QueueSize: len(items)}
}

func (o *Orchestrator) clear(ctx context.Context, log logrus.FieldLogger, userID int64) Response {
	unlock, err := o.locks.Lock(ctx, userID)
	if err != nil {
		return o.failure(ctx, log, userID, fmt.Errorf("failed to acquire session lock: %w", err))
	}
	defer unlock()

	if err := o.store.Clear(ctx, userID); err != nil {
		return o.failure(ctx, log, userID, err)
	}
	log.Info("Queue cleared")
	return Response{Kind: ResponseCleared, Text: msgCleared}
}

// failure logs err and builds the error response carrying the current size.
func (o *Orchestrator) failure(ctx context.Context, log logrus.FieldLogger, userID int64, err error) Response {
	kind := domain.KindOf(err)
	if kind == "" {
		kind = domain.KindStore
	}
	entry := log.WithError(err).WithField("error_kind", kind)
	if kind.Category() == domain.CategoryStore {
		entry.Error("Event failed")
	} else {
		entry.Warn("Event failed")
	}

	size, sizeErr := o.store.Size(ctx, userID)
	if sizeErr != nil {
		log.WithError(sizeErr).Warn("Failed to read queue size")
	}
	return Response{Kind: ResponseError, Text: userMessage(err), QueueSize: size, ErrorKind: string(kind)}
}
