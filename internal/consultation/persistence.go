package consultation

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/konsulta/domain/entities"
)

// buildRecord must be called with mu held
func (o *Orchestrator) buildRecord(bill entities.ConsultationBill, recordID string) *entities.Consultation {
	record := &entities.Consultation{
		ID:            o.info.ID,
		AppointmentID: o.info.AppointmentID,
		PatientID:     o.info.PatientID,
		Mode:          o.info.Mode,
		Bill:          bill,
		Suggestions:   o.suggestions.Clone(),
		CreatedAt:     o.createdAt,
	}
	if o.transcript != nil {
		transcript := *o.transcript
		record.Transcript = &transcript
	}
	if o.audio != nil {
		record.DurationSeconds = o.audio.DurationSeconds
	}
	record.MarkCompleted(recordID)
	return record
}

// persist archives the audio and stores the consultation record. Both steps
// are best effort: the bill is already accepted by the billing endpoint.
func (o *Orchestrator) persist(ctx context.Context, record *entities.Consultation) error {
	if o.deps.Repository == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.deps.RequestTimeout)
	defer cancel()

	var archiveErr error
	if o.deps.Artifacts != nil && o.audio != nil && o.audio.Size() > 0 {
		key := fmt.Sprintf("consultations/%s/%s", record.ID, o.audio.Filename())
		url, err := o.deps.Artifacts.PutObject(ctx, key, bytes.NewReader(o.audio.Data), int64(o.audio.Size()), o.audio.ContentType())
		if err != nil {
			archiveErr = err
			o.logger.Error("Failed to archive consultation audio", zap.String("key", key), zap.Error(err))
		} else {
			record.AudioURL = url
		}
	}

	start := time.Now()
	if err := o.deps.Repository.Save(ctx, record); err != nil {
		o.logger.Error("Failed to save consultation record", zap.Error(err))
		return err
	}

	o.logger.Debug("Consultation record saved",
		zap.String("audioURL", record.AudioURL),
		zap.Duration("took", time.Since(start)))
	return archiveErr
}
