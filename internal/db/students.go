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

var studentIndexes = []mongo.IndexModel{
	{Keys: bson.D{{Key: "class", Value: 1}, {Key: "section", Value: 1}}},
	{Keys: bson.D{{Key: "admission_no", Value: 1}}},
}

var admissionIndexes = []mongo.IndexModel{
	{Keys: bson.D{{Key: "admission_no", Value: 1}}, Options: options.Index().SetUnique(true)},
}

// StudentStore reads students and writes their denormalised fee status.
type StudentStore struct {
	collection *mongo.Collection
}

func NewStudentStore(database *mongo.Database) *StudentStore {
	return &StudentStore{collection: database.Collection(studentsCollection)}
}

func (s *StudentStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Student, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var student models.Student
	if err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&student); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ledger.ErrStudentNotFound
		}
		log.Error().Err(err).Str("student_id", id.Hex()).Msg("Failed to fetch student")
		return nil, fmt.Errorf("failed to fetch student: %w", err)
	}
	return &student, nil
}

func (s *StudentStore) ListByClassSection(ctx context.Context, class, section string) ([]models.Student, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	filter := bson.M{"class": class}
	if section != "" {
		filter["section"] = section
	}
	cur, err := s.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		log.Error().Err(err).Str("class", class).Str("section", section).Msg("Failed to fetch students")
		return nil, fmt.Errorf("failed to fetch students: %w", err)
	}
	defer cur.Close(ctx)

	students := []models.Student{}
	if err := cur.All(ctx, &students); err != nil {
		return nil, fmt.Errorf("failed to decode students: %w", err)
	}
	return students, nil
}

// UpdateFeeStatus only matches while the stored stamp is missing or not
// newer than stamp, so a late sync cannot overwrite a later one.
func (s *StudentStore) UpdateFeeStatus(ctx context.Context, id primitive.ObjectID, status models.Status, stamp int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	filter := bson.M{
		"_id": id,
		"$or": bson.A{
			bson.M{"fee_status_stamp": bson.M{"$lte": stamp}},
			bson.M{"fee_status_stamp": bson.M{"$exists": false}},
		},
	}
	res, err := s.collection.UpdateOne(ctx, filter, bson.M{
		"$set": bson.M{
			"fee_status":       status,
			"fee_status_stamp": stamp,
			"updated_at":       time.Now(),
		},
	})
	if err != nil {
		log.Error().Err(err).Str("student_id", id.Hex()).Msg("Failed to update student fee status")
		return fmt.Errorf("failed to update student fee status: %w", err)
	}
	if res.MatchedCount == 0 {
		n, err := s.collection.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return fmt.Errorf("failed to check student: %w", err)
		}
		if n == 0 {
			return ledger.ErrStudentNotFound
		}
		return ledger.ErrStaleFeeStatus
	}
	return nil
}

// AdmissionStore reads admission forms.
type AdmissionStore struct {
	collection *mongo.Collection
}

func NewAdmissionStore(database *mongo.Database) *AdmissionStore {
	return &AdmissionStore{collection: database.Collection(admissionsCollection)}
}

func (s *AdmissionStore) FindByAdmissionNo(ctx context.Context, admissionNo string) (*models.Admission, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var admission models.Admission
	if err := s.collection.FindOne(ctx, bson.M{"admission_no": admissionNo}).Decode(&admission); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ledger.ErrAdmissionNotFound
		}
		log.Error().Err(err).Str("admission_no", admissionNo).Msg("Failed to fetch admission")
		return nil, fmt.Errorf("failed to fetch admission: %w", err)
	}
	return &admission, nil
}
