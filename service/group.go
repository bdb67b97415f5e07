package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	dbt "trypie/db/db"
	"trypie/ledger"
)

const maxTextLength = 200

type NewGroup struct {
	Title       string
	Destination string
	// profile of the creator
	Name      string
	AvatarURL string
}

type NewMember struct {
	UserID    ledger.UserID
	Name      string
	AvatarURL string
}

// Group is a group with its members.
type Group struct {
	dbt.GroupInfo
	Members []dbt.Member
}

func checkText(field, s string, required bool) error {
	if required && strings.TrimSpace(s) == "" {
		return invalid(field, "is required")
	}
	if len(s) > maxTextLength {
		return invalid(field, fmt.Sprintf("longer than %d bytes", maxTextLength))
	}
	return nil
}

// CreateGroup creates a group and makes actor its organizer.
func (s *ExpenseService) CreateGroup(ctx context.Context, actor ledger.UserID, in NewGroup) (*Group, error) {
	if actor == "" {
		return nil, invalid("actor", "is required")
	}
	if err := checkText("title", in.Title, true); err != nil {
		return nil, err
	}
	if err := checkText("destination", in.Destination, false); err != nil {
		return nil, err
	}

	info := &dbt.GroupInfo{
		ID:          uuid.New(),
		Title:       strings.TrimSpace(in.Title),
		Destination: strings.TrimSpace(in.Destination),
		CreatorID:   actor,
	}
	if err := s.DB.CreateGroup(ctx, info); err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}

	name := in.Name
	if name == "" {
		name = string(actor)
	}
	organizer := &dbt.Member{
		GroupID:   info.ID,
		UserID:    actor,
		Name:      name,
		AvatarURL: in.AvatarURL,
		Role:      dbt.RoleOrganizer,
	}
	if err := s.DB.AddMember(ctx, organizer); err != nil {
		// without an organizer nobody could use the group
		if delErr := s.DB.DeleteGroup(ctx, info.ID); delErr != nil {
			s.log.Error("drop group without organizer", "group", info.ID, "error", delErr)
		}
		return nil, fmt.Errorf("add organizer: %w", err)
	}
	return &Group{GroupInfo: *info, Members: []dbt.Member{*organizer}}, nil
}

func (s *ExpenseService) GetGroup(ctx context.Context, actor ledger.UserID, groupID uuid.UUID) (*Group, error) {
	members, _, err := s.requireMember(ctx, groupID, actor)
	if err != nil {
		return nil, err
	}
	info, err := s.DB.GetGroupInfo(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return &Group{GroupInfo: *info, Members: members}, nil
}

// AddMember lets the organizer add a user to the group.
func (s *ExpenseService) AddMember(ctx context.Context, actor ledger.UserID, groupID uuid.UUID, in NewMember) (*dbt.Member, error) {
	_, me, err := s.requireMember(ctx, groupID, actor)
	if err != nil {
		return nil, err
	}
	if me.Role != dbt.RoleOrganizer {
		return nil, fmt.Errorf("only the organizer adds members: %w", ErrForbidden)
	}
	if in.UserID == "" {
		return nil, invalid("user_id", "is required")
	}
	if err := checkText("name", in.Name, false); err != nil {
		return nil, err
	}

	name := in.Name
	if name == "" {
		name = string(in.UserID)
	}
	member := &dbt.Member{
		GroupID:   groupID,
		UserID:    in.UserID,
		Name:      name,
		AvatarURL: in.AvatarURL,
		Role:      dbt.RoleMember,
	}
	if err := s.DB.AddMember(ctx, member); err != nil {
		return nil, fmt.Errorf("add member %s: %w", in.UserID, err)
	}
	return member, nil
}

// RemoveMember removes a member. The organizer may remove anybody but themselves,
// members may only leave. A member still referenced by an expense cannot be removed.
func (s *ExpenseService) RemoveMember(ctx context.Context, actor ledger.UserID, groupID uuid.UUID, user ledger.UserID) error {
	members, me, err := s.requireMember(ctx, groupID, actor)
	if err != nil {
		return err
	}
	target, ok := findMember(members, user)
	if !ok {
		return fmt.Errorf("member %s of group %s: %w", user, groupID, dbt.ErrNotFound)
	}
	if actor != user && me.Role != dbt.RoleOrganizer {
		return fmt.Errorf("only the organizer removes other members: %w", ErrForbidden)
	}
	if target.Role == dbt.RoleOrganizer {
		return fmt.Errorf("the organizer cannot leave the group: %w", ErrConflict)
	}

	expenses, err := s.snapshot(ctx, groupID)
	if err != nil {
		return err
	}
	for _, e := range expenses {
		if e.PaidBy == user {
			return fmt.Errorf("%s paid expense %s: %w", user, e.ID, ErrConflict)
		}
		for _, sh := range e.Shares {
			if sh.UserID == user {
				return fmt.Errorf("%s has a share on expense %s: %w", user, e.ID, ErrConflict)
			}
		}
	}

	if err := s.DB.RemoveMember(ctx, groupID, user); err != nil {
		return fmt.Errorf("remove member %s: %w", user, err)
	}
	return nil
}

func (s *ExpenseService) ListMembers(ctx context.Context, actor ledger.UserID, groupID uuid.UUID) ([]dbt.Member, error) {
	members, _, err := s.requireMember(ctx, groupID, actor)
	return members, err
}
