package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cocoro-lab/cocoro/pkg/domain/model"
	"github.com/cocoro-lab/cocoro/pkg/domain/types"
)

type transitionDoc struct {
	From       string    `firestore:"From"`
	To         string    `firestore:"To"`
	Confidence int       `firestore:"Confidence"`
	Rationale  string    `firestore:"Rationale,omitempty"`
	At         time.Time `firestore:"At"`
}

type sessionDoc struct {
	ID             model.SessionID `firestore:"ID"`
	OwnerID        string          `firestore:"OwnerID"`
	CurrentStage   string          `firestore:"CurrentStage"`
	History        []transitionDoc `firestore:"History"`
	StageStartedAt time.Time       `firestore:"StageStartedAt"`
	LastSwitchedAt time.Time       `firestore:"LastSwitchedAt,omitempty"`
	CreatedAt      time.Time       `firestore:"CreatedAt"`
	UpdatedAt      time.Time       `firestore:"UpdatedAt"`
}

func toSessionDoc(s *model.Session) *sessionDoc {
	doc := &sessionDoc{
		ID:             s.ID,
		OwnerID:        s.OwnerID,
		CurrentStage:   s.CurrentStage.String(),
		History:        make([]transitionDoc, len(s.History)),
		StageStartedAt: s.StageStartedAt,
		LastSwitchedAt: s.LastSwitchedAt,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
	for i, tr := range s.History {
		doc.History[i] = transitionDoc{
			From:       tr.From.String(),
			To:         tr.To.String(),
			Confidence: tr.Confidence,
			Rationale:  tr.Rationale,
			At:         tr.At,
		}
	}
	return doc
}

func fromSessionDoc(d *sessionDoc) *model.Session {
	s := &model.Session{
		ID:             d.ID,
		OwnerID:        d.OwnerID,
		CurrentStage:   types.StageID(d.CurrentStage),
		History:        make([]model.StageTransition, len(d.History)),
		StageStartedAt: d.StageStartedAt,
		LastSwitchedAt: d.LastSwitchedAt,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
	for i, tr := range d.History {
		s.History[i] = model.StageTransition{
			From:       types.StageID(tr.From),
			To:         types.StageID(tr.To),
			Confidence: tr.Confidence,
			Rationale:  tr.Rationale,
			At:         tr.At,
		}
	}
	return s
}

type sessionRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newSessionRepository(client *firestore.Client) *sessionRepository {
	return &sessionRepository{client: client}
}

// sessionDocRef keys sessions by owner: one active session per owner.
func (r *sessionRepository) sessionDocRef(ownerID string) *firestore.DocumentRef {
	return r.client.Collection(r.collectionPrefix + "sessions").Doc(ownerID)
}

func (r *sessionRepository) GetByOwner(ctx context.Context, ownerID string) (*model.Session, error) {
	doc, err := r.sessionDocRef(ownerID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "session not found", goerr.V("ownerID", ownerID))
		}
		return nil, goerr.Wrap(err, "failed to get session", goerr.V("ownerID", ownerID))
	}

	var d sessionDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal session", goerr.V("ownerID", ownerID))
	}

	return fromSessionDoc(&d), nil
}

func (r *sessionRepository) Create(ctx context.Context, session *model.Session) (*model.Session, error) {
	if session.OwnerID == "" {
		return nil, goerr.New("owner ID is required")
	}
	if session.ID == "" {
		session.ID = model.NewSessionID()
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now

	if _, err := r.sessionDocRef(session.OwnerID).Create(ctx, toSessionDoc(session)); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil, goerr.New("session already exists", goerr.V("ownerID", session.OwnerID))
		}
		return nil, goerr.Wrap(err, "failed to create session", goerr.V("ownerID", session.OwnerID))
	}

	return session, nil
}

func (r *sessionRepository) ApplyTransition(ctx context.Context, ownerID string, tr model.StageTransition) (*model.Session, error) {
	docRef := r.sessionDocRef(ownerID)

	var applied *model.Session
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(docRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(ErrNotFound, "session not found", goerr.V("ownerID", ownerID))
			}
			return goerr.Wrap(err, "failed to get session in transaction")
		}

		var d sessionDoc
		if err := doc.DataTo(&d); err != nil {
			return goerr.Wrap(err, "failed to unmarshal session")
		}

		sess := fromSessionDoc(&d)
		now := time.Now().UTC()
		if tr.At.IsZero() {
			tr.At = now
		}

		sess.CurrentStage = tr.To
		sess.History = append(sess.History, tr)
		sess.StageStartedAt = tr.At
		sess.LastSwitchedAt = tr.At
		sess.UpdatedAt = now

		if err := tx.Set(docRef, toSessionDoc(sess)); err != nil {
			return goerr.Wrap(err, "failed to store session transition")
		}

		applied = sess
		return nil
	})
	if err != nil {
		return nil, err
	}

	return applied, nil
}
