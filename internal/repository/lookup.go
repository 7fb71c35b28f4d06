package repository

import (
	"context"
	"fmt"

	"github.com/mikoajp/EventHub-sub001/internal/model"
)

// findEvent loads an event by id.
func findEvent(ctx context.Context, q querier, id string) (*model.Event, error) {
	var e model.Event
	err := q.QueryRowContext(ctx,
		"SELECT id, name, status FROM events WHERE id = ? LIMIT 1",
		id).Scan(&e.ID, &e.Name, &e.Status)
	if err != nil {
		return nil, fmt.Errorf("find event %s: %w", id, notFound(err))
	}
	return &e, nil
}

// findUser loads a user by id.
func findUser(ctx context.Context, q querier, id string) (*model.User, error) {
	var u model.User
	err := q.QueryRowContext(ctx,
		"SELECT id, email FROM users WHERE id = ? LIMIT 1",
		id).Scan(&u.ID, &u.Email)
	if err != nil {
		return nil, fmt.Errorf("find user %s: %w", id, notFound(err))
	}
	return &u, nil
}
