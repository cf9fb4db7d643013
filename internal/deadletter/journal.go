package deadletter

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultListLimit = 50

// Entry - запись о снимке, который не удалось обработать.
type Entry struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CaptureID string             `bson:"capture_id" json:"captureId"`
	Attempts  int                `bson:"attempts" json:"attempts"`
	Reason    string             `bson:"reason" json:"reason"`
	FailedAt  time.Time          `bson:"failed_at" json:"failedAt"`
}

// Journal хранит окончательно упавшие задачи для разбора оператором.
type Journal interface {
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, limit int64) ([]Entry, error)
	ListByCapture(ctx context.Context, captureID string) ([]Entry, error)
	// Purge удаляет записи снимка; пустой captureID удаляет всё.
	Purge(ctx context.Context, captureID string) (int64, error)
}

type mongoJournal struct {
	collection *mongo.Collection
	now        func() time.Time
}

func NewMongoJournal(collection *mongo.Collection) Journal {
	return &mongoJournal{
		collection: collection,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (j *mongoJournal) Record(ctx context.Context, entry Entry) error {
	if entry.FailedAt.IsZero() {
		entry.FailedAt = j.now()
	}

	res, err := j.collection.InsertOne(ctx, entry)
	if err != nil {
		return err
	}
	if _, ok := res.InsertedID.(primitive.ObjectID); !ok {
		return errors.New("unexpected insert id type")
	}
	return nil
}

func (j *mongoJournal) List(ctx context.Context, limit int64) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "failed_at", Value: -1}}).
		SetLimit(limit)
	return j.findMany(ctx, bson.M{}, opts)
}

func (j *mongoJournal) ListByCapture(ctx context.Context, captureID string) ([]Entry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "failed_at", Value: -1}})
	return j.findMany(ctx, bson.M{"capture_id": captureID}, opts)
}

func (j *mongoJournal) Purge(ctx context.Context, captureID string) (int64, error) {
	filter := bson.M{}
	if captureID != "" {
		filter = bson.M{"capture_id": captureID}
	}
	res, err := j.collection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (j *mongoJournal) findMany(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]Entry, error) {
	cur, err := j.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	entries := make([]Entry, 0)
	for cur.Next(ctx) {
		var entry Entry
		if err := cur.Decode(&entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// NewNopJournal - журнал без хранилища, когда Mongo не настроен.
func NewNopJournal() Journal {
	return nopJournal{}
}

type nopJournal struct{}

func (nopJournal) Record(context.Context, Entry) error { return nil }

func (nopJournal) List(context.Context, int64) ([]Entry, error) { return []Entry{}, nil }

func (nopJournal) ListByCapture(context.Context, string) ([]Entry, error) { return []Entry{}, nil }

func (nopJournal) Purge(context.Context, string) (int64, error) { return 0, nil }
