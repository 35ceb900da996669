package store

import (
	"context"
	"fmt"
)

// Relationship loading. Each loader issues one query for a batch of ids so a
// list of N rows costs a constant number of round trips.

func (s *Store) usersByID(ctx context.Context, ids []int64) (map[int64]*UserRef, error) {
	out := make(map[int64]*UserRef)
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return out, nil
	}
	var users []UserRef
	if err := selectIn(ctx, s.db, &users,
		`SELECT id, name, email, role FROM users WHERE id IN (?)`, ids); err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	for i := range users {
		out[users[i].ID] = &users[i]
	}
	return out, nil
}

// driversByID loads drivers with their user. Soft deleted drivers are still
// returned so historical records keep their relation.
func (s *Store) driversByID(ctx context.Context, ids []int64) (map[int64]*Driver, error) {
	out := make(map[int64]*Driver)
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return out, nil
	}
	var drivers []Driver
	if err := selectIn(ctx, s.db, &drivers,
		`SELECT `+driverColumns+` FROM drivers WHERE id IN (?)`, ids); err != nil {
		return nil, fmt.Errorf("load drivers: %w", err)
	}
	userIDs := make([]int64, 0, len(drivers))
	for _, d := range drivers {
		userIDs = append(userIDs, d.UserID)
	}
	users, err := s.usersByID(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	for i := range drivers {
		drivers[i].User = users[drivers[i].UserID]
		out[drivers[i].ID] = &drivers[i]
	}
	return out, nil
}

func (s *Store) vehiclesByID(ctx context.Context, ids []int64) (map[int64]*Vehicle, error) {
	out := make(map[int64]*Vehicle)
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return out, nil
	}
	var vehicles []Vehicle
	if err := selectIn(ctx, s.db, &vehicles,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE id IN (?)`, ids); err != nil {
		return nil, fmt.Errorf("load vehicles: %w", err)
	}
	for i := range vehicles {
		out[vehicles[i].ID] = &vehicles[i]
	}
	return out, nil
}

// vehicleAndDriver resolves the vehicle and driver relations of a batch of rows.
func (s *Store) vehicleAndDriver(ctx context.Context, vehicleIDs, driverIDs []int64) (map[int64]*Vehicle, map[int64]*Driver, error) {
	vehicles, err := s.vehiclesByID(ctx, vehicleIDs)
	if err != nil {
		return nil, nil, err
	}
	if driverIDs == nil {
		return vehicles, nil, nil
	}
	drivers, err := s.driversByID(ctx, driverIDs)
	if err != nil {
		return nil, nil, err
	}
	return vehicles, drivers, nil
}

func derefIDs(ptrs []*int64) []int64 {
	out := make([]int64, 0, len(ptrs))
	for _, p := range ptrs {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out
}
