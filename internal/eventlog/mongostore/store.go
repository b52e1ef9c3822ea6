package mongostore

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/LerianStudio/ledgercore/internal/domain"
)

const (
	eventsCollection   = "events"
	countersCollection = "counters"
	globalCounterID    = "global_position"
)

// eventDoc is the wire shape persisted per event — JSON-tagged so the body
// matches spec.md §6's "JSON encoding of the AccountEvent record" even
// though the driver itself speaks BSON on the wire to Mongo.
type eventDoc struct {
	Stream          string `bson:"stream" json:"-"`
	AccountID       string `bson:"account_id" json:"accountId"`
	Sequence        uint64 `bson:"sequence" json:"-"`
	GlobalCommit    int64  `bson:"global_commit" json:"-"`
	Type            string `bson:"type" json:"type"`
	Amount          string `bson:"amount" json:"amount"`
	TransactionID   string `bson:"transaction_id" json:"transactionId"`
	TargetAccountID string `bson:"target_account_id,omitempty" json:"targetId,omitempty"`
	Description     string `bson:"description,omitempty" json:"description,omitempty"`
	CreatedAt       time.Time `bson:"created_at" json:"-"`
}

func streamName(accountID string) string { return fmt.Sprintf("Account-%s", accountID) }

func toDoc(evt domain.AccountEvent) eventDoc {
	return eventDoc{
		Stream:          streamName(evt.AccountID),
		AccountID:       evt.AccountID,
		Sequence:        evt.Sequence,
		GlobalCommit:    evt.GlobalPosition.Commit,
		Type:            string(evt.Type),
		Amount:          evt.Amount.String(),
		TransactionID:   evt.TransactionID,
		TargetAccountID: evt.TargetAccountID,
		Description:     evt.Description,
		CreatedAt:       time.Now().UTC(),
	}
}

func fromDoc(d eventDoc) (domain.AccountEvent, error) {
	amount, err := decimal.NewFromString(d.Amount)
	if err != nil {
		return domain.AccountEvent{}, fmt.Errorf("decode amount: %w", err)
	}

	return domain.AccountEvent{
		AccountID:       d.AccountID,
		Amount:          amount,
		Type:            domain.EventType(d.Type),
		TransactionID:   d.TransactionID,
		TargetAccountID: d.TargetAccountID,
		Description:     d.Description,
		Sequence:        d.Sequence,
		GlobalPosition:  domain.Position{Commit: d.GlobalCommit},
	}, nil
}

// Store implements ports.EventLog over MongoDB.
type Store struct {
	conn *Connection
}

// New builds a Store bound to conn.
func New(conn *Connection) *Store {
	return &Store{conn: conn}
}

// AppendToStream assigns per-stream sequences and a contiguous block of
// global positions, then inserts the batch. Because the ring's journal
// stage is the sole writer, sequence/position assignment needs no
// optimistic-concurrency retry loop here.
func (s *Store) AppendToStream(ctx context.Context, accountID string, events []domain.AccountEvent) ([]domain.AccountEvent, error) {
	if len(events) == 0 {
		return nil, nil
	}

	db, err := s.conn.DB(ctx)
	if err != nil {
		return nil, err
	}

	coll := db.Collection(eventsCollection)

	nextSeq, err := s.nextSequence(ctx, coll, accountID)
	if err != nil {
		return nil, err
	}

	startPos, err := s.allocateGlobalPositions(ctx, db, len(events))
	if err != nil {
		return nil, err
	}

	docs := make([]interface{}, len(events))
	out := make([]domain.AccountEvent, len(events))

	for i, evt := range events {
		evt.Sequence = nextSeq + uint64(i)
		evt.GlobalPosition = domain.Position{Commit: startPos + int64(i)}
		docs[i] = toDoc(evt)
		out[i] = evt
	}

	if _, err := coll.InsertMany(ctx, docs); err != nil {
		return nil, fmt.Errorf("insert events: %w", err)
	}

	return out, nil
}

func (s *Store) nextSequence(ctx context.Context, coll *mongo.Collection, accountID string) (uint64, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "sequence", Value: -1}})

	var last eventDoc
	if err := coll.FindOne(ctx, bson.M{"stream": streamName(accountID)}, opts).Decode(&last); err != nil {
		if err == mongo.ErrNoDocuments {
			return 0, nil
		}

		return 0, fmt.Errorf("find last sequence: %w", err)
	}

	return last.Sequence + 1, nil
}

// allocateGlobalPositions atomically reserves a contiguous block of n
// global positions and returns the first one.
func (s *Store) allocateGlobalPositions(ctx context.Context, db *mongo.Database, n int) (int64, error) {
	coll := db.Collection(countersCollection)

	result := coll.FindOneAndUpdate(ctx,
		bson.M{"_id": globalCounterID},
		bson.M{"$inc": bson.M{"seq": int64(n)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	)

	var doc struct {
		Seq int64 `bson:"seq"`
	}

	if err := result.Decode(&doc); err != nil {
		return 0, fmt.Errorf("allocate global position: %w", err)
	}

	return doc.Seq - int64(n) + 1, nil
}

// ReadStreamFrom reads accountID's stream from fromSequence inclusive,
// oldest first.
func (s *Store) ReadStreamFrom(ctx context.Context, accountID string, fromSequence uint64) ([]domain.AccountEvent, error) {
	db, err := s.conn.DB(ctx)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "sequence", Value: 1}})

	cur, err := db.Collection(eventsCollection).Find(ctx,
		bson.M{"stream": streamName(accountID), "sequence": bson.M{"$gte": fromSequence}}, opts)
	if err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}
	defer cur.Close(ctx)

	return decodeAll(ctx, cur)
}

// ReadAllBackward scans the global stream backward up to depth events.
func (s *Store) ReadAllBackward(ctx context.Context, depth int) ([]domain.AccountEvent, error) {
	db, err := s.conn.DB(ctx)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "global_commit", Value: -1}}).SetLimit(int64(depth))

	cur, err := db.Collection(eventsCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("read all backward: %w", err)
	}
	defer cur.Close(ctx)

	return decodeAll(ctx, cur)
}

func decodeAll(ctx context.Context, cur *mongo.Cursor) ([]domain.AccountEvent, error) {
	var out []domain.AccountEvent

	for cur.Next(ctx) {
		var d eventDoc
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}

		evt, err := fromDoc(d)
		if err != nil {
			return nil, err
		}

		out = append(out, evt)
	}

	return out, cur.Err()
}

// Subscribe is a catch-up subscription: it first replays every event with
// global position > from.Commit (so `from` is exclusive, matching
// "resumes from position" semantics), then tails new inserts via a change
// stream. It stops on ctx cancellation or a non-nil handler error.
func (s *Store) Subscribe(ctx context.Context, from domain.Position, handler func(domain.AccountEvent) error) error {
	db, err := s.conn.DB(ctx)
	if err != nil {
		return err
	}

	coll := db.Collection(eventsCollection)

	last := from.Commit
	if last, err = s.catchUp(ctx, coll, last, handler); err != nil {
		return err
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "operationType", Value: "insert"}}}},
	}

	stream, err := coll.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return fmt.Errorf("open change stream: %w", err)
	}
	defer stream.Close(ctx)

	for stream.Next(ctx) {
		var change struct {
			FullDocument eventDoc `bson:"fullDocument"`
		}

		if err := stream.Decode(&change); err != nil {
			return fmt.Errorf("decode change event: %w", err)
		}

		if change.FullDocument.GlobalCommit <= last {
			continue // already delivered by the catch-up scan
		}

		evt, err := fromDoc(change.FullDocument)
		if err != nil {
			return err
		}

		if err := handler(evt); err != nil {
			return err
		}

		last = change.FullDocument.GlobalCommit
	}

	return stream.Err()
}

func (s *Store) catchUp(ctx context.Context, coll *mongo.Collection, from int64, handler func(domain.AccountEvent) error) (int64, error) {
	opts := options.Find().SetSort(bson.D{{Key: "global_commit", Value: 1}})

	cur, err := coll.Find(ctx, bson.M{"global_commit": bson.M{"$gt": from}}, opts)
	if err != nil {
		return from, fmt.Errorf("catch-up scan: %w", err)
	}
	defer cur.Close(ctx)

	last := from

	for cur.Next(ctx) {
		var d eventDoc
		if err := cur.Decode(&d); err != nil {
			return last, fmt.Errorf("decode event: %w", err)
		}

		evt, err := fromDoc(d)
		if err != nil {
			return last, err
		}

		if err := handler(evt); err != nil {
			return last, err
		}

		last = d.GlobalCommit
	}

	return last, cur.Err()
}
