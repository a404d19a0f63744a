package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/markjakearzadon/schoolfee-gobackend/internal/ledger"
	"github.com/markjakearzadon/schoolfee-gobackend/internal/models"
)

var staffIndexes = []mongo.IndexModel{
	{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
}

type StaffStore struct {
	collection *mongo.Collection
}

func NewStaffStore(database *mongo.Database) *StaffStore {
	return &StaffStore{collection: database.Collection(staffCollection)}
}

func (s *StaffStore) Insert(ctx context.Context, staff *models.Staff) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if staff.ID.IsZero() {
		staff.ID = primitive.NewObjectID()
	}
	if _, err := s.collection.InsertOne(ctx, staff); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ledger.ErrDuplicateStaff
		}
		log.Error().Err(err).Msg("Failed to insert staff")
		return fmt.Errorf("failed to insert staff: %w", err)
	}
	return nil
}

func (s *StaffStore) FindByEmail(ctx context.Context, email string) (*models.Staff, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var staff models.Staff
	if err := s.collection.FindOne(ctx, bson.M{"email": email}).Decode(&staff); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ledger.ErrStaffNotFound
		}
		return nil, fmt.Errorf("failed to fetch staff: %w", err)
	}
	return &staff, nil
}

// List returns all staff without password hashes.
func (s *StaffStore) List(ctx context.Context) ([]models.Staff, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	cur, err := s.collection.Find(ctx, bson.D{}, options.Find().SetProjection(bson.D{{Key: "password", Value: 0}}))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch staff: %w", err)
	}
	defer cur.Close(ctx)

	staff := []models.Staff{}
	if err := cur.All(ctx, &staff); err != nil {
		return nil, fmt.Errorf("failed to decode staff: %w", err)
	}
	return staff, nil
}
