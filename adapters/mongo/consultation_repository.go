package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/satriahrh/konsulta/domain"
	"github.com/satriahrh/konsulta/domain/entities"
)

const consultationsCollection = "consultations"

// ConsultationRepository implements repositories.ConsultationRepository using MongoDB
type ConsultationRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

// NewConsultationRepository creates a new MongoDB consultation repository
func NewConsultationRepository(db *mongo.Database, logger *zap.Logger) *ConsultationRepository {
	collection := db.Collection(consultationsCollection)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
			{Keys: bson.D{{Key: "patient_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "appointment_id", Value: 1}}},
		})
		if err != nil {
			logger.Error("Failed to create consultation indexes", zap.Error(err))
		} else {
			logger.Info("Consultation indexes created successfully")
		}
	}()

	return &ConsultationRepository{
		collection: collection,
		logger:     logger,
	}
}

// Save implements repositories.ConsultationRepository. Records are upserted by id.
func (r *ConsultationRepository) Save(ctx context.Context, consultation *entities.Consultation) error {
	if consultation == nil {
		return errors.New("consultation cannot be nil")
	}
	if consultation.ID == "" {
		return errors.New("consultation ID cannot be empty")
	}
	if err := consultation.Validate(); err != nil {
		return err
	}

	_, err := r.collection.ReplaceOne(
		ctx,
		bson.M{"_id": consultation.ID},
		consultation,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save consultation: %w", err)
	}
	return nil
}

// GetByID implements repositories.ConsultationRepository
func (r *ConsultationRepository) GetByID(ctx context.Context, id string) (*entities.Consultation, error) {
	if id == "" {
		return nil, errors.New("consultation ID cannot be empty")
	}

	var consultation entities.Consultation
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&consultation)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrConsultationNotFound
		}
		return nil, fmt.Errorf("failed to get consultation %s: %w", id, err)
	}
	return &consultation, nil
}

// ListByPatientID implements repositories.ConsultationRepository, newest first
func (r *ConsultationRepository) ListByPatientID(ctx context.Context, patientID string, limit int) ([]*entities.Consultation, error) {
	if patientID == "" {
		return nil, errors.New("patient ID cannot be empty")
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{"patient_id": patientID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list consultations for patient %s: %w", patientID, err)
	}
	defer cursor.Close(ctx)

	consultations := make([]*entities.Consultation, 0)
	if err := cursor.All(ctx, &consultations); err != nil {
		return nil, fmt.Errorf("failed to decode consultations: %w", err)
	}
	return consultations, nil
}
