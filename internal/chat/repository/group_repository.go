package repository

import (
	"context"

	"group_chat_client/internal/chat/domain"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type gormGroupRepository struct {
	db *gorm.DB
}

// NewGormGroupRepository create the group directory backed by postgres
func NewGormGroupRepository(db *gorm.DB) GroupRepository {
	return &gormGroupRepository{db: db}
}

// MigrateGroups 自動建立 groups / group_members
func MigrateGroups(db *gorm.DB) error {
	return errors.Wrap(db.AutoMigrate(&domain.Group{}, &domain.GroupMember{}), "migrate groups")
}

// ListForMember groups memberID belongs to, newest first
func (r *gormGroupRepository) ListForMember(ctx context.Context, memberID string) ([]domain.Group, error) {
	var groups []domain.Group
	err := r.db.WithContext(ctx).
		Preload("Members").
		Joins("JOIN group_members ON group_members.group_id = groups.id").
		Where("group_members.member_id = ?", memberID).
		Order("groups.created_at DESC").
		Find(&groups).Error
	if err != nil {
		return nil, errors.Wrap(err, "list groups")
	}
	return groups, nil
}

// FindByID nil when the group does not exist
func (r *gormGroupRepository) FindByID(ctx context.Context, groupID string) (*domain.Group, error) {
	var g domain.Group
	err := r.db.WithContext(ctx).Preload("Members").First(&g, "id = ?", groupID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "find group")
	}
	return &g, nil
}

// CreateGroup create a group with its members
func (r *gormGroupRepository) CreateGroup(ctx context.Context, g *domain.Group) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(g).Error, "create group")
}
