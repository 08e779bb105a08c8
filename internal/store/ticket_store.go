package store

import (
	"context"
	"errors"
	"time"

	"github.com/psds-microservice/support-bot/internal/errs"
	"github.com/psds-microservice/support-bot/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TicketStore хранит тикеты и переписку. Бизнес-правил здесь нет, кроме того,
// что флаг непросмотренной активности меняется в одной транзакции с вставкой сообщения.
type TicketStore struct {
	db *gorm.DB
}

func NewTicketStore(db *gorm.DB) *TicketStore {
	return &TicketStore{db: db}
}

// CreateTicket вставляет тикет и начальные сообщения одной транзакцией.
// id сообщений идут в порядке слайса.
func (s *TicketStore) CreateTicket(ctx context.Context, t *model.Ticket, messages []model.Message) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(t).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errs.ErrConflict
			}
			return err
		}
		for i := range messages {
			messages[i].TicketID = t.ID
			if err := tx.Create(&messages[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// AppendMessage сохраняет сообщение и атомарно выставляет флаг тикета.
func (s *TicketStore) AppendMessage(ctx context.Context, m *model.Message, unseen bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := lockTicket(tx, m.TicketID)
		if err != nil {
			return err
		}
		if !t.IsOpen() {
			return errs.ErrTicketClosed
		}
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		return tx.Model(t).Update("unseen", unseen).Error
	})
}

func (s *TicketStore) SetUnseen(ctx context.Context, id uint64, unseen bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := lockTicket(tx, id)
		if err != nil {
			return err
		}
		if !t.IsOpen() {
			return errs.ErrTicketClosed
		}
		return tx.Model(t).Update("unseen", unseen).Error
	})
}

// Close закрывает тикет. Повторное закрытие: ErrTicketClosed.
func (s *TicketStore) Close(ctx context.Context, id uint64, at time.Time) (*model.Ticket, error) {
	var out *model.Ticket
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := lockTicket(tx, id)
		if err != nil {
			return err
		}
		if !t.IsOpen() {
			return errs.ErrTicketClosed
		}
		if err := tx.Model(t).Updates(map[string]interface{}{
			"status":    model.TicketStatusClosed,
			"closed_at": at,
		}).Error; err != nil {
			return err
		}
		t.Status = model.TicketStatusClosed
		t.ClosedAt = &at
		out = t
		return nil
	})
	return out, err
}

func (s *TicketStore) GetTicket(ctx context.Context, id uint64) (*model.Ticket, error) {
	var t model.Ticket
	if err := s.db.WithContext(ctx).First(&t, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrTicketNotFound
		}
		return nil, err
	}
	return &t, nil
}

// FindOpenByOwner возвращает открытый тикет владельца или nil.
func (s *TicketStore) FindOpenByOwner(ctx context.Context, ownerID int64) (*model.Ticket, error) {
	var items []model.Ticket
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND status = ?", ownerID, model.TicketStatusOpen).
		Order("id ASC").Limit(1).Find(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (s *TicketStore) ListOpen(ctx context.Context) ([]model.Ticket, error) {
	var items []model.Ticket
	if err := s.db.WithContext(ctx).
		Where("status = ?", model.TicketStatusOpen).
		Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *TicketStore) CountUnseen(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&model.Ticket{}).
		Where("status = ? AND unseen = ?", model.TicketStatusOpen, true).
		Count(&total).Error
	return total, err
}

func (s *TicketStore) ListMessages(ctx context.Context, ticketID uint64) ([]model.Message, error) {
	if _, err := s.GetTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	var items []model.Message
	if err := s.db.WithContext(ctx).
		Where("ticket_id = ?", ticketID).
		Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// lockTicket читает строку тикета с FOR UPDATE. SQLite игнорирует блокировку:
// его пишущие транзакции и так последовательны.
func lockTicket(tx *gorm.DB, id uint64) (*model.Ticket, error) {
	var t model.Ticket
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&t, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrTicketNotFound
		}
		return nil, err
	}
	return &t, nil
}
