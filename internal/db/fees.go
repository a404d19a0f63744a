package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/markjakearzadon/schoolfee-gobackend/internal/ledger"
	"github.com/markjakearzadon/schoolfee-gobackend/internal/models"
)

const (
	feesCollection       = "fees"
	studentsCollection   = "students"
	admissionsCollection = "admissions"
	staffCollection      = "staff"

	queryTimeout = 5 * time.Second
)

var feeIndexes = []mongo.IndexModel{
	{
		Keys: bson.D{
			{Key: "student_id", Value: 1},
			{Key: "class", Value: 1},
			{Key: "section", Value: 1},
		},
		Options: options.Index().SetUnique(true).SetName("student_class_section"),
	},
	{Keys: bson.D{{Key: "payment_id", Value: 1}}, Options: options.Index().SetUnique(true).SetName("payment_id")},
	{Keys: bson.D{{Key: "class", Value: 1}, {Key: "section", Value: 1}}},
}

// FeeStore keeps fee records in the fees collection. Writes are guarded by
// the version field so concurrent payments cannot overwrite each other.
type FeeStore struct {
	collection *mongo.Collection
}

func NewFeeStore(database *mongo.Database) *FeeStore {
	return &FeeStore{collection: database.Collection(feesCollection)}
}

// Insert stores a new record. A second record for the same student, class
// and section fails with ledger.ErrDuplicateFeeRecord.
func (s *FeeStore) Insert(ctx context.Context, rec *models.FeeRecord) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if rec.ID.IsZero() {
		rec.ID = primitive.NewObjectID()
	}
	if _, err := s.collection.InsertOne(ctx, rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ledger.ErrDuplicateFeeRecord
		}
		log.Error().Err(err).Str("student_id", rec.StudentID.Hex()).Msg("Failed to insert fee record")
		return fmt.Errorf("failed to insert fee record: %w", err)
	}
	return nil
}

// Update replaces the record if its stored version still equals rec.Version
// and bumps the version on success.
func (s *FeeStore) Update(ctx context.Context, rec *models.FeeRecord) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	next := *rec
	next.Version++
	res, err := s.collection.ReplaceOne(ctx, bson.M{"_id": rec.ID, "version": rec.Version}, next)
	if err != nil {
		log.Error().Err(err).Str("fee_id", rec.ID.Hex()).Msg("Failed to update fee record")
		return fmt.Errorf("failed to update fee record: %w", err)
	}
	if res.MatchedCount == 0 {
		return ledger.ErrVersionConflict
	}
	rec.Version = next.Version
	return nil
}

func (s *FeeStore) FindByStudentClassSection(ctx context.Context, studentID primitive.ObjectID, class, section string) (*models.FeeRecord, error) {
	return s.findOne(ctx, bson.M{"student_id": studentID, "class": class, "section": section})
}

func (s *FeeStore) FindByPaymentID(ctx context.Context, paymentID string) (*models.FeeRecord, error) {
	return s.findOne(ctx, bson.M{"payment_id": paymentID})
}

func (s *FeeStore) findOne(ctx context.Context, filter bson.M) (*models.FeeRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var rec models.FeeRecord
	if err := s.collection.FindOne(ctx, filter).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ledger.ErrFeeRecordNotFound
		}
		log.Error().Err(err).Interface("filter", filter).Msg("Failed to fetch fee record")
		return nil, fmt.Errorf("failed to fetch fee record: %w", err)
	}
	return &rec, nil
}

// ListByStudents returns every record of the given students, oldest first.
func (s *FeeStore) ListByStudents(ctx context.Context, studentIDs []primitive.ObjectID) ([]models.FeeRecord, error) {
	if len(studentIDs) == 0 {
		return []models.FeeRecord{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cur, err := s.collection.Find(ctx,
		bson.M{"student_id": bson.M{"$in": studentIDs}},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		log.Error().Err(err).Int("students", len(studentIDs)).Msg("Failed to fetch fee records")
		return nil, fmt.Errorf("failed to fetch fee records: %w", err)
	}
	defer cur.Close(ctx)

	records := []models.FeeRecord{}
	if err := cur.All(ctx, &records); err != nil {
		log.Error().Err(err).Msg("Failed to decode fee records")
		return nil, fmt.Errorf("failed to decode fee records: %w", err)
	}
	return records, nil
}
