package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Shivanand-hulikatti/conference-booking/internal/model"
	"github.com/Shivanand-hulikatti/conference-booking/internal/repository"
)

// MaxConferenceDuration bounds end - start for a conference.
const MaxConferenceDuration = 12 * time.Hour

// RegistryService registers and looks up users and conferences.
type RegistryService struct {
	store repository.Store
	log   *zerolog.Logger
	now   func() time.Time
}

// NewRegistryService constructs a RegistryService.
func NewRegistryService(store repository.Store, log *zerolog.Logger, opts ...Option) *RegistryService {
	o := newOptions(opts)
	return &RegistryService{store: store, log: log, now: o.now}
}

// ParseTopics splits a comma-separated topic list, trimming blanks.
func ParseTopics(s string) []string {
	var topics []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}

// RegisterUser creates a user. Format rules are enforced by the caller; the
// registry only guards identity.
func (s *RegistryService) RegisterUser(ctx context.Context, req model.CreateUserRequest) (*model.User, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, invalid("user_id is required")
	}

	user := &model.User{
		UserID:           userID,
		InterestedTopics: ParseTopics(req.InterestedTopics),
		CreatedAt:        s.now(),
	}
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.CreateUser(ctx, user)
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, conflict("user %s already exists", userID)
		}
		return nil, err
	}

	s.log.Info().Str("user_id", user.UserID).Msg("user registered")
	return user, nil
}

// RegisterConference creates a conference whose capacity is the requested
// number of available slots.
func (s *RegistryService) RegisterConference(ctx context.Context, req model.CreateConferenceRequest) (*model.Conference, error) {
	name := strings.TrimSpace(req.Name)
	switch {
	case name == "":
		return nil, invalid("conference name is required")
	case req.AvailableSlots <= 0:
		return nil, invalid("available_slots must be a positive integer")
	case !req.StartTimestamp.Before(req.EndTimestamp):
		return nil, invalid("end_timestamp must be after start_timestamp")
	case req.EndTimestamp.Sub(req.StartTimestamp) > MaxConferenceDuration:
		return nil, invalid("a conference may not last longer than %s", MaxConferenceDuration)
	}

	conf := &model.Conference{
		Name:           name,
		Location:       strings.TrimSpace(req.Location),
		Topics:         ParseTopics(req.Topics),
		StartTime:      req.StartTimestamp.UTC(),
		EndTime:        req.EndTimestamp.UTC(),
		Capacity:       req.AvailableSlots,
		AvailableSlots: req.AvailableSlots,
		CreatedAt:      s.now(),
	}
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.CreateConference(ctx, conf)
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, conflict("conference %s already exists", name)
		}
		return nil, err
	}

	s.log.Info().
		Str("conference", conf.Name).
		Int("capacity", conf.Capacity).
		Time("start", conf.StartTime).
		Time("end", conf.EndTime).
		Msg("conference registered")
	return conf, nil
}

// GetUser returns a single user.
func (s *RegistryService) GetUser(ctx context.Context, userID string) (*model.User, error) {
	var user *model.User
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) (err error) {
		user, err = tx.GetUser(ctx, userID)
		return lookup(err, "user "+userID)
	})
	return user, err
}

// GetConference returns a single conference with its current seat count.
func (s *RegistryService) GetConference(ctx context.Context, name string) (*model.Conference, error) {
	var conf *model.Conference
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) (err error) {
		conf, err = tx.GetConference(ctx, name)
		return lookup(err, "conference "+name)
	})
	return conf, err
}
