package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Ananth-NQI/linkup-backend/internal/models"
)

// DatabaseStore implements Store on PostgreSQL through gorm. Conditional
// updates are single UPDATE ... WHERE statements; RowsAffected tells the
// caller whether it won.
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore wraps an open gorm connection.
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

// AutoMigrate creates or updates every table the store uses.
func (d *DatabaseStore) AutoMigrate() error {
	return d.db.AutoMigrate(
		&models.User{},
		&models.Profile{},
		&models.ConversationSession{},
		&models.ContactInvitation{},
		&models.Linkup{},
		&models.OutboundMessage{},
	)
}

// Ping checks the underlying connection.
func (d *DatabaseStore) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// User operations
func (d *DatabaseStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := d.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (d *DatabaseStore) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	var u models.User
	if err := d.db.WithContext(ctx).Where("phone = ?", models.NormalizePhone(phone)).First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (d *DatabaseStore) SetUserOptOut(ctx context.Context, userID string, optedOut bool) error {
	res := d.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		Updates(map[string]interface{}{"opted_out": optedOut, "updated_at": time.Now()})
	if res.Error != nil {
		return fmt.Errorf("storage: set opt out: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Profile operations
func (d *DatabaseStore) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	var p models.Profile
	if err := d.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (d *DatabaseStore) GetProfileByUserID(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	if err := d.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (d *DatabaseStore) SaveInterviewAnswers(ctx context.Context, profileID, answers string, complete bool) error {
	updates := map[string]interface{}{"interview_answers": answers, "updated_at": time.Now()}
	if complete {
		updates["is_complete_mvp"] = true
	}
	res := d.db.WithContext(ctx).Model(&models.Profile{}).Where("id = ?", profileID).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("storage: save interview answers: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Session operations
func (d *DatabaseStore) GetSession(ctx context.Context, id string) (*models.ConversationSession, error) {
	var s models.ConversationSession
	if err := d.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (d *DatabaseStore) GetOrCreateSession(ctx context.Context, userID string) (*models.ConversationSession, error) {
	db := d.db.WithContext(ctx)
	candidate := &models.ConversationSession{UserID: userID, Mode: "idle", StateToken: "idle"}
	// a concurrent first message may create the row first; either way we read it back
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(candidate).Error; err != nil {
		return nil, fmt.Errorf("storage: create session: %w", err)
	}
	var s models.ConversationSession
	if err := db.Where("user_id = ?", userID).First(&s).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (d *DatabaseStore) UpdateSessionState(ctx context.Context, sessionID, mode, token string) error {
	res := d.db.WithContext(ctx).Model(&models.ConversationSession{}).Where("id = ?", sessionID).
		Updates(map[string]interface{}{"mode": mode, "state_token": token, "updated_at": time.Now()})
	if res.Error != nil {
		return fmt.Errorf("storage: update session state: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *DatabaseStore) PromoteIdleSession(ctx context.Context, sessionID, mode, token string) (bool, error) {
	res := d.db.WithContext(ctx).Model(&models.ConversationSession{}).
		Where("id = ? AND mode = ?", sessionID, "idle").
		Updates(map[string]interface{}{"mode": mode, "state_token": token, "updated_at": time.Now()})
	if res.Error != nil {
		return false, fmt.Errorf("storage: promote idle session: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (d *DatabaseStore) CompareAndSwapStateToken(ctx context.Context, sessionID, fromToken, toToken, stepID string) (bool, error) {
	res := d.db.WithContext(ctx).Model(&models.ConversationSession{}).
		Where("id = ? AND state_token = ?", sessionID, fromToken).
		Updates(map[string]interface{}{"state_token": toToken, "current_step_id": stepID, "updated_at": time.Now()})
	if res.Error != nil {
		return false, fmt.Errorf("storage: swap state token: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (d *DatabaseStore) ClaimInboundMessage(ctx context.Context, sessionID, messageSID string) (bool, error) {
	res := d.db.WithContext(ctx).Model(&models.ConversationSession{}).
		Where("id = ? AND (last_inbound_message_sid IS NULL OR last_inbound_message_sid <> ?)", sessionID, messageSID).
		Update("last_inbound_message_sid", messageSID)
	if res.Error != nil {
		return false, fmt.Errorf("storage: claim inbound message: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (d *DatabaseStore) ReleaseInboundMessage(ctx context.Context, sessionID, messageSID, previousSID string) error {
	err := d.db.WithContext(ctx).Model(&models.ConversationSession{}).
		Where("id = ? AND last_inbound_message_sid = ?", sessionID, messageSID).
		Update("last_inbound_message_sid", previousSID).Error
	if err != nil {
		return fmt.Errorf("storage: release inbound message: %w", err)
	}
	return nil
}

func (d *DatabaseStore) SetSessionPaused(ctx context.Context, sessionID string, paused bool) error {
	var pausedAt interface{}
	if paused {
		pausedAt = time.Now()
	}
	res := d.db.WithContext(ctx).Model(&models.ConversationSession{}).Where("id = ?", sessionID).
		Update("paused_at", pausedAt)
	if res.Error != nil {
		return fmt.Errorf("storage: set session paused: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *DatabaseStore) AutoTransitionCompletedLinkup(ctx context.Context, sessionID string) (bool, error) {
	moved := false
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s models.ConversationSession
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&s, "id = ?", sessionID).Error; err != nil {
			return notFound(err)
		}
		if s.LinkupID == nil || !autoTransitionModes[s.Mode] {
			return nil
		}
		var l models.Linkup
		if err := tx.First(&l, "id = ?", *s.LinkupID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if l.Status != models.LinkupStatusCompleted {
			return nil
		}
		if err := tx.Model(&s).Updates(map[string]interface{}{
			"mode":        postEventMode,
			"state_token": postEventAttendanceToken,
			"updated_at":  time.Now(),
		}).Error; err != nil {
			return err
		}
		moved = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("storage: auto transition completed linkup: %w", err)
	}
	return moved, nil
}

// Contact invitation operations
func (d *DatabaseStore) GetPendingContactInvitation(ctx context.Context, phoneHash string) (*models.ContactInvitation, error) {
	var inv models.ContactInvitation
	err := d.db.WithContext(ctx).
		Where("invitee_phone_hash = ? AND status = ?", phoneHash, models.InvitationStatusPending).
		Order("created_at DESC").First(&inv).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &inv, nil
}

func (d *DatabaseStore) RespondToContactInvitation(ctx context.Context, id, status string) (bool, error) {
	res := d.db.WithContext(ctx).Model(&models.ContactInvitation{}).
		Where("id = ? AND status = ?", id, models.InvitationStatusPending).
		Updates(map[string]interface{}{"status": status, "responded_at": time.Now(), "updated_at": time.Now()})
	if res.Error != nil {
		return false, fmt.Errorf("storage: respond to contact invitation: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Outbound message operations
func (d *DatabaseStore) GetOutboundMessageByKey(ctx context.Context, key string) (*models.OutboundMessage, error) {
	var msg models.OutboundMessage
	if err := d.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&msg).Error; err != nil {
		return nil, notFound(err)
	}
	return &msg, nil
}

func (d *DatabaseStore) GetOutboundMessageByProviderID(ctx context.Context, providerMessageID string) (*models.OutboundMessage, error) {
	var msg models.OutboundMessage
	if err := d.db.WithContext(ctx).Where("provider_message_id = ?", providerMessageID).First(&msg).Error; err != nil {
		return nil, notFound(err)
	}
	return &msg, nil
}

func (d *DatabaseStore) InsertOutboundMessage(ctx context.Context, msg *models.OutboundMessage) (bool, error) {
	res := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "idempotency_key"}},
		DoNothing: true,
	}).Create(msg)
	if res.Error != nil {
		return false, fmt.Errorf("storage: insert outbound message: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (d *DatabaseStore) ClaimOutboundSend(ctx context.Context, key string, staleBefore time.Time) (bool, error) {
	res := d.db.WithContext(ctx).Model(&models.OutboundMessage{}).
		Where("idempotency_key = ? AND provider_message_id = '' AND (job_status <> ? OR updated_at < ?)",
			key, models.JobStatusSending, staleBefore).
		Updates(map[string]interface{}{"job_status": models.JobStatusSending, "updated_at": time.Now()})
	if res.Error != nil {
		return false, fmt.Errorf("storage: claim outbound send: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (d *DatabaseStore) MarkOutboundMessageSent(ctx context.Context, key, providerMessageID, status, from string) error {
	res := d.db.WithContext(ctx).Model(&models.OutboundMessage{}).Where("idempotency_key = ?", key).
		Updates(map[string]interface{}{
			"provider_message_id": providerMessageID,
			"status":              status,
			"job_status":          models.JobStatusSent,
			"from_phone":          from,
			"last_error":          "",
			"attempts":            gorm.Expr("attempts + 1"),
			"updated_at":          time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("storage: mark outbound sent: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *DatabaseStore) RecordOutboundFailure(ctx context.Context, key, reason string) error {
	err := d.db.WithContext(ctx).Model(&models.OutboundMessage{}).Where("idempotency_key = ?", key).
		Updates(map[string]interface{}{
			"last_error": reason,
			"job_status": models.JobStatusPending,
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("storage: record outbound failure: %w", err)
	}
	return nil
}

func (d *DatabaseStore) AdvanceOutboundStatus(ctx context.Context, id string, t StatusTransition) (bool, error) {
	res := d.db.WithContext(ctx).Model(&models.OutboundMessage{}).
		Where("id = ? AND status = ? AND job_status = ?", id, t.FromStatus, t.FromJobStatus).
		Updates(map[string]interface{}{"status": t.ToStatus, "job_status": t.ToJobStatus, "updated_at": time.Now()})
	if res.Error != nil {
		return false, fmt.Errorf("storage: advance outbound status: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}
