package app

import (
	"context"

	"group_chat_client/internal/chat/domain"
	"group_chat_client/internal/chat/repository"
	"group_chat_client/pkg"
	errprocess "group_chat_client/pkg/err"

	"github.com/pkg/errors"
)

// GroupUseCase 群組列表
type GroupUseCase struct {
	repo     repository.GroupRepository
	identity repository.IdentityProvider
}

// NewGroupUseCase create GroupUseCase
func NewGroupUseCase(repo repository.GroupRepository, identity repository.IdentityProvider) *GroupUseCase {
	return &GroupUseCase{repo: repo, identity: identity}
}

// ListGroups groups of the signed in member
func (uc *GroupUseCase) ListGroups(ctx context.Context) ([]domain.GroupView, error) {
	ident := uc.identity.CurrentIdentity()
	if ident == nil {
		return nil, errprocess.ErrUnauthenticated
	}

	groups, err := uc.repo.ListForMember(ctx, ident.ID)
	if err != nil {
		return nil, err
	}
	views := make([]domain.GroupView, 0, len(groups))
	for _, g := range groups {
		views = append(views, g.View())
	}
	return views, nil
}

// GetGroup find a group the signed in member belongs to
func (uc *GroupUseCase) GetGroup(ctx context.Context, groupID string) (domain.GroupView, error) {
	ident := uc.identity.CurrentIdentity()
	if ident == nil {
		return domain.GroupView{}, errprocess.ErrUnauthenticated
	}

	g, err := uc.repo.FindByID(ctx, groupID)
	if err != nil {
		return domain.GroupView{}, err
	}
	if g == nil || !pkg.Contains(g.MemberIDs(), ident.ID) {
		return domain.GroupView{}, errprocess.Wrap(errprocess.ErrRejected, errors.Errorf("not a member of group %s", groupID))
	}
	return g.View(), nil
}
