package db_test

import (
	"context"
	"testing"
	"time"

	"paintball-ticketing/internal/database"
	"paintball-ticketing/internal/database/dbtest"
	"paintball-ticketing/internal/models"
	"paintball-ticketing/internal/tickets/db"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTicket(orderID, code string, status models.TicketStatus) models.Ticket {
	now := time.Now().UTC()
	return models.Ticket{
		ID:             uuid.NewString(),
		Code:           code,
		OrderID:        orderID,
		Status:         status,
		ValidUntil:     now.AddDate(0, 0, 30),
		MaxScans:       2,
		ScanWindowDays: 14,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestCreateAndGetTickets(t *testing.T) {
	ctx := context.Background()
	ticketDB := &db.DB{Bun: dbtest.New(t)}
	orderID := uuid.NewString()

	err := ticketDB.CreateTickets(ctx, []models.Ticket{
		newTicket(orderID, "PB-AAAA-BBBB", models.TicketPending),
		newTicket(orderID, "PB-CCCC-DDDD", models.TicketPending),
	})
	require.NoError(t, err)

	exists, err := ticketDB.CodeExists(ctx, "PB-AAAA-BBBB")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = ticketDB.CodeExists(ctx, "PB-ZZZZ-ZZZZ")
	require.NoError(t, err)
	assert.False(t, exists)

	got, err := ticketDB.GetTicketByCode(ctx, "PB-CCCC-DDDD", false)
	require.NoError(t, err)
	assert.Equal(t, orderID, got.OrderID)

	_, err = ticketDB.GetTicketByCode(ctx, "PB-ZZZZ-ZZZZ", true)
	assert.ErrorIs(t, err, database.ErrNotFound)

	list, err := ticketDB.ListTicketsByOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestDuplicateCodeIsUniqueViolation(t *testing.T) {
	ctx := context.Background()
	ticketDB := &db.DB{Bun: dbtest.New(t)}

	require.NoError(t, ticketDB.CreateTickets(ctx, []models.Ticket{newTicket(uuid.NewString(), "PB-AAAA-BBBB", models.TicketPending)}))
	err := ticketDB.CreateTickets(ctx, []models.Ticket{newTicket(uuid.NewString(), "PB-AAAA-BBBB", models.TicketPending)})
	assert.True(t, database.IsUniqueViolation(err))
}

func TestUpdateStatusByOrder(t *testing.T) {
	ctx := context.Background()
	ticketDB := &db.DB{Bun: dbtest.New(t)}
	orderID := uuid.NewString()

	require.NoError(t, ticketDB.CreateTickets(ctx, []models.Ticket{
		newTicket(orderID, "PB-AAAA-0001", models.TicketActive),
		newTicket(orderID, "PB-AAAA-0002", models.TicketScanned),
		newTicket(uuid.NewString(), "PB-AAAA-0003", models.TicketActive),
	}))

	n, err := ticketDB.UpdateStatusByOrder(ctx, orderID,
		[]models.TicketStatus{models.TicketPending, models.TicketActive}, models.TicketCancelled, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := ticketDB.GetTicketByCode(ctx, "PB-AAAA-0002", false)
	require.NoError(t, err)
	assert.Equal(t, models.TicketScanned, got.Status)

	other, err := ticketDB.GetTicketByCode(ctx, "PB-AAAA-0003", false)
	require.NoError(t, err)
	assert.Equal(t, models.TicketActive, other.Status)
}

func TestScansAreListedNewestFirst(t *testing.T) {
	ctx := context.Background()
	ticketDB := &db.DB{Bun: dbtest.New(t)}
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	for i, allowed := range []bool{true, false} {
		require.NoError(t, ticketDB.InsertScan(ctx, &models.TicketScan{
			ID:         uuid.NewString(),
			TicketCode: "PB-AAAA-BBBB",
			Allowed:    allowed,
			Reason:     "test",
			ScannedAt:  base.Add(time.Duration(i) * time.Hour),
		}))
	}

	scans, err := ticketDB.ListScans(ctx, "PB-AAAA-BBBB", 0)
	require.NoError(t, err)
	require.Len(t, scans, 2)
	assert.False(t, scans[0].Allowed)
	assert.Empty(t, scans[0].TicketID)
}
