// internal/chat/postgres.go

package chat

import (
    "context"
    "database/sql"
    "errors"
    "time"

    "github.com/jmoiron/sqlx"
)

type postgresRepository struct {
    db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) Repository {
    return &postgresRepository{db: db}
}

// conversationRow maps the conversations table with its nullable columns
type conversationRow struct {
    ID            int64          `db:"id"`
    UserLow       int64          `db:"user_low"`
    UserHigh      int64          `db:"user_high"`
    ItemID        sql.NullInt64  `db:"related_item_id"`
    ItemName      sql.NullString `db:"related_item_name"`
    ItemImage     sql.NullString `db:"related_item_image"`
    IsActive      bool           `db:"is_active"`
    CreatedAt     time.Time      `db:"created_at"`
    LastMessageAt time.Time      `db:"last_message_at"`
}

func (row *conversationRow) toConversation() *Conversation {
    conv := &Conversation{
        ID:            row.ID,
        Participants:  [2]int64{row.UserLow, row.UserHigh},
        IsActive:      row.IsActive,
        CreatedAt:     row.CreatedAt,
        LastMessageAt: row.LastMessageAt,
    }
    if row.ItemID.Valid {
        conv.RelatedItem = &RelatedItem{
            ID:    row.ItemID.Int64,
            Name:  row.ItemName.String,
            Image: row.ItemImage.String,
        }
    }
    return conv
}

// FindOrCreateConversation inserts the pair if absent; the unique index on
// (user_low, user_high) makes concurrent first contact safe. The related
// item is only stored at creation, never updated on reuse.
func (r *postgresRepository) FindOrCreateConversation(ctx context.Context, userLow, userHigh int64, item *RelatedItem, isActive bool) (*Conversation, bool, error) {
    var itemID sql.NullInt64
    var itemName, itemImage sql.NullString
    if item != nil {
        itemID = sql.NullInt64{Int64: item.ID, Valid: true}
        itemName = sql.NullString{String: item.Name, Valid: item.Name != ""}
        itemImage = sql.NullString{String: item.Image, Valid: item.Image != ""}
    }

    tx, err := r.db.BeginTxx(ctx, nil)
    if err != nil {
        return nil, false, err
    }
    defer tx.Rollback()

    insert := `
        INSERT INTO conversations (
            user_low, user_high, related_item_id, related_item_name,
            related_item_image, is_active, created_at, last_message_at
        ) VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
        ON CONFLICT (user_low, user_high) DO NOTHING
        RETURNING id`

    var id int64
    created := true
    err = tx.QueryRowxContext(ctx, insert, userLow, userHigh, itemID, itemName, itemImage, isActive).Scan(&id)
    if errors.Is(err, sql.ErrNoRows) {
        // Lost the race (or the pair already chatted): fetch the winner
        created = false
        err = tx.QueryRowxContext(ctx,
            `SELECT id FROM conversations WHERE user_low = $1 AND user_high = $2`,
            userLow, userHigh).Scan(&id)
    }
    if err != nil {
        return nil, false, err
    }

    if created {
        _, err = tx.ExecContext(ctx, `
            INSERT INTO conversation_participants (conversation_id, user_id, unread_count)
            VALUES ($1, $2, 0), ($1, $3, 0)
            ON CONFLICT (conversation_id, user_id) DO NOTHING`,
            id, userLow, userHigh)
        if err != nil {
            return nil, false, err
        }
    }

    var row conversationRow
    err = tx.GetContext(ctx, &row, `
        SELECT id, user_low, user_high, related_item_id, related_item_name,
               related_item_image, is_active, created_at, last_message_at
        FROM conversations WHERE id = $1`, id)
    if err != nil {
        return nil, false, err
    }

    if err := tx.Commit(); err != nil {
        return nil, false, err
    }

    conv := row.toConversation()
    if created {
        conv.UnreadCounts = map[int64]int{userLow: 0, userHigh: 0}
    } else if err := r.loadUnreadCounts(ctx, conv); err != nil {
        return nil, false, err
    }

    return conv, created, nil
}

func (r *postgresRepository) GetConversation(ctx context.Context, id int64) (*Conversation, error) {
    var row conversationRow
    err := r.db.GetContext(ctx, &row, `
        SELECT id, user_low, user_high, related_item_id, related_item_name,
               related_item_image, is_active, created_at, last_message_at
        FROM conversations WHERE id = $1`, id)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    if err != nil {
        return nil, err
    }

    conv := row.toConversation()
    if err := r.loadUnreadCounts(ctx, conv); err != nil {
        return nil, err
    }
    return conv, nil
}

func (r *postgresRepository) GetUserConversations(ctx context.Context, userID int64) ([]*Conversation, error) {
    var rows []conversationRow
    err := r.db.SelectContext(ctx, &rows, `
        SELECT id, user_low, user_high, related_item_id, related_item_name,
               related_item_image, is_active, created_at, last_message_at
        FROM conversations
        WHERE user_low = $1 OR user_high = $1
        ORDER BY last_message_at DESC`, userID)
    if err != nil {
        return nil, err
    }

    conversations := make([]*Conversation, 0, len(rows))
    for i := range rows {
        conv := rows[i].toConversation()
        if err := r.loadUnreadCounts(ctx, conv); err != nil {
            return nil, err
        }
        conversations = append(conversations, conv)
    }
    return conversations, nil
}

func (r *postgresRepository) loadUnreadCounts(ctx context.Context, conv *Conversation) error {
    rows, err := r.db.QueryxContext(ctx, `
        SELECT user_id, unread_count FROM conversation_participants
        WHERE conversation_id = $1`, conv.ID)
    if err != nil {
        return err
    }
    defer rows.Close()

    counts := make(map[int64]int, 2)
    for rows.Next() {
        var userID int64
        var count int
        if err := rows.Scan(&userID, &count); err != nil {
            return err
        }
        counts[userID] = count
    }
    conv.UnreadCounts = counts
    return rows.Err()
}

func (r *postgresRepository) SetConversationActive(ctx context.Context, id int64, active bool) error {
    res, err := r.db.ExecContext(ctx,
        `UPDATE conversations SET is_active = $1 WHERE id = $2`, active, id)
    if err != nil {
        return err
    }
    if n, _ := res.RowsAffected(); n == 0 {
        return ErrNotFound
    }
    return nil
}

func (r *postgresRepository) UpdateLastMessageAt(ctx context.Context, id int64, t time.Time) error {
    _, err := r.db.ExecContext(ctx,
        `UPDATE conversations SET last_message_at = $1 WHERE id = $2`, t, id)
    return err
}

// messageRow maps the messages table with its nullable columns
type messageRow struct {
    ID             int64          `db:"id"`
    ConversationID int64          `db:"conversation_id"`
    SenderID       sql.NullInt64  `db:"sender_id"`
    Type           string         `db:"message_type"`
    Content        string         `db:"content"`
    ItemID         sql.NullInt64  `db:"request_item_id"`
    ItemName       sql.NullString `db:"request_item_name"`
    ItemImage      sql.NullString `db:"request_item_image"`
    Status         string         `db:"status"`
    IsRead         bool           `db:"is_read"`
    ReadAt         *time.Time     `db:"read_at"`
    CreatedAt      time.Time      `db:"created_at"`
}

func (row *messageRow) toMessage() *Message {
    msg := &Message{
        ID:             row.ID,
        ConversationID: row.ConversationID,
        SenderID:       row.SenderID.Int64,
        Type:           MessageType(row.Type),
        Content:        row.Content,
        Status:         MessageStatus(row.Status),
        IsRead:         row.IsRead,
        ReadAt:         row.ReadAt,
        CreatedAt:      row.CreatedAt,
    }
    if row.ItemID.Valid {
        msg.Request = &RequestInfo{
            ItemID:    row.ItemID.Int64,
            ItemName:  row.ItemName.String,
            ItemImage: row.ItemImage.String,
        }
    }
    return msg
}

const messageColumns = `
    id, conversation_id, sender_id, message_type, content,
    request_item_id, request_item_name, request_item_image,
    status, is_read, read_at, created_at`

func (r *postgresRepository) CreateMessage(ctx context.Context, message *Message) error {
    var senderID sql.NullInt64
    if message.SenderID != 0 {
        senderID = sql.NullInt64{Int64: message.SenderID, Valid: true}
    }

    var itemID sql.NullInt64
    var itemName, itemImage sql.NullString
    if message.Request != nil {
        itemID = sql.NullInt64{Int64: message.Request.ItemID, Valid: true}
        itemName = sql.NullString{String: message.Request.ItemName, Valid: message.Request.ItemName != ""}
        itemImage = sql.NullString{String: message.Request.ItemImage, Valid: message.Request.ItemImage != ""}
    }

    query := `
        INSERT INTO messages (
            conversation_id, sender_id, message_type, content,
            request_item_id, request_item_name, request_item_image,
            status, is_read, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, $9)
        RETURNING id`

    return r.db.QueryRowxContext(ctx, query,
        message.ConversationID, senderID, message.Type, message.Content,
        itemID, itemName, itemImage, message.Status, message.CreatedAt,
    ).Scan(&message.ID)
}

func (r *postgresRepository) GetMessage(ctx context.Context, convID, messageID int64) (*Message, error) {
    var row messageRow
    err := r.db.GetContext(ctx, &row,
        `SELECT `+messageColumns+` FROM messages WHERE id = $1 AND conversation_id = $2`,
        messageID, convID)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    if err != nil {
        return nil, err
    }
    return row.toMessage(), nil
}

func (r *postgresRepository) GetMessages(ctx context.Context, convID int64) ([]*Message, error) {
    var rows []messageRow
    err := r.db.SelectContext(ctx, &rows,
        `SELECT `+messageColumns+` FROM messages
         WHERE conversation_id = $1
         ORDER BY created_at ASC, id ASC`, convID)
    if err != nil {
        return nil, err
    }

    messages := make([]*Message, 0, len(rows))
    for i := range rows {
        messages = append(messages, rows[i].toMessage())
    }
    return messages, nil
}

func (r *postgresRepository) GetLastMessage(ctx context.Context, convID int64) (*Message, error) {
    var row messageRow
    err := r.db.GetContext(ctx, &row,
        `SELECT `+messageColumns+` FROM messages
         WHERE conversation_id = $1
         ORDER BY created_at DESC, id DESC
         LIMIT 1`, convID)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, nil
    }
    if err != nil {
        return nil, err
    }
    return row.toMessage(), nil
}

func (r *postgresRepository) DeleteMessage(ctx context.Context, convID, messageID int64) error {
    res, err := r.db.ExecContext(ctx,
        `DELETE FROM messages WHERE id = $1 AND conversation_id = $2`,
        messageID, convID)
    if err != nil {
        return err
    }
    if n, _ := res.RowsAffected(); n == 0 {
        return ErrNotFound
    }
    return nil
}

func (r *postgresRepository) ClearMessages(ctx context.Context, convID int64) error {
    _, err := r.db.ExecContext(ctx,
        `DELETE FROM messages WHERE conversation_id = $1`, convID)
    return err
}

// MarkMessagesRead flips every unread non-system message authored by the
// other participant. Returns how many rows changed.
func (r *postgresRepository) MarkMessagesRead(ctx context.Context, convID, readerID int64, at time.Time) (int, error) {
    res, err := r.db.ExecContext(ctx, `
        UPDATE messages
        SET is_read = true, read_at = $1, status = 'read'
        WHERE conversation_id = $2
          AND is_read = false
          AND message_type <> 'system'
          AND sender_id IS NOT NULL
          AND sender_id <> $3`,
        at, convID, readerID)
    if err != nil {
        return 0, err
    }
    n, err := res.RowsAffected()
    return int(n), err
}

func (r *postgresRepository) IncrementUnread(ctx context.Context, convID, userID int64) error {
    _, err := r.db.ExecContext(ctx, `
        INSERT INTO conversation_participants (conversation_id, user_id, unread_count)
        VALUES ($1, $2, 1)
        ON CONFLICT (conversation_id, user_id)
        DO UPDATE SET unread_count = conversation_participants.unread_count + 1`,
        convID, userID)
    return err
}

func (r *postgresRepository) ResetUnread(ctx context.Context, convID, userID int64) error {
    _, err := r.db.ExecContext(ctx, `
        UPDATE conversation_participants
        SET unread_count = 0, last_read_at = NOW()
        WHERE conversation_id = $1 AND user_id = $2`,
        convID, userID)
    return err
}

func (r *postgresRepository) SetTyping(ctx context.Context, convID, userID int64, at time.Time) error {
    _, err := r.db.ExecContext(ctx, `
        UPDATE conversation_participants
        SET typing_at = $1
        WHERE conversation_id = $2 AND user_id = $3`,
        at, convID, userID)
    return err
}

func (r *postgresRepository) ClearTyping(ctx context.Context, convID, userID int64) error {
    _, err := r.db.ExecContext(ctx, `
        UPDATE conversation_participants
        SET typing_at = NULL
        WHERE conversation_id = $1 AND user_id = $2`,
        convID, userID)
    return err
}

func (r *postgresRepository) GetTypingTimes(ctx context.Context, convID int64) (map[int64]time.Time, error) {
    rows, err := r.db.QueryxContext(ctx, `
        SELECT user_id, typing_at FROM conversation_participants
        WHERE conversation_id = $1 AND typing_at IS NOT NULL`, convID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()

    typing := make(map[int64]time.Time)
    for rows.Next() {
        var userID int64
        var at time.Time
        if err := rows.Scan(&userID, &at); err != nil {
            return nil, err
        }
        typing[userID] = at
    }
    return typing, rows.Err()
}
