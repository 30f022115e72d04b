package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AccessChecker answers whether a user may enter a board's room. The check
// runs to completion before a join is finalized; an error rejects the join
// (fail-closed), it never admits by default.
type AccessChecker interface {
	Allowed(ctx context.Context, roomID, userID string) (bool, error)
}

// BoardStore checks room access against the board service's tables: the
// user must be the board's owner or one of its collaborators. Boards the
// service does not know about are open rooms.
type BoardStore struct {
	pool *pgxpool.Pool
}

func NewBoardStore(pool *pgxpool.Pool) *BoardStore {
	return &BoardStore{pool: pool}
}

func (s *BoardStore) Allowed(ctx context.Context, roomID, userID string) (bool, error) {
	var ownerID string
	err := s.pool.QueryRow(ctx,
		`SELECT owner_id FROM boards WHERE id = $1`, roomID,
	).Scan(&ownerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("board lookup: %w", err)
	}
	if ownerID == userID {
		return true, nil
	}

	var n int
	err = s.pool.QueryRow(ctx,
		`SELECT count(*) FROM board_collaborators WHERE board_id = $1 AND user_id = $2`,
		roomID, userID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("collaborator lookup: %w", err)
	}
	return n > 0, nil
}

// StaticAccess is an in-memory AccessChecker for tests and single-node
// setups without a board database.
type StaticAccess struct {
	Owners        map[string]string          // boardID -> owner userID
	Collaborators map[string]map[string]bool // boardID -> set of userIDs
}

func (s *StaticAccess) Allowed(_ context.Context, roomID, userID string) (bool, error) {
	owner, known := s.Owners[roomID]
	if !known {
		return true, nil
	}
	if owner == userID {
		return true, nil
	}
	return s.Collaborators[roomID][userID], nil
}
