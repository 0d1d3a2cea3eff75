// Package mongodb stores users, tasks and task history in MongoDB collections.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"teamtask/tasks/core"
)

const (
	usersCollection   = "users"
	tasksCollection   = "tasks"
	historyCollection = "task_history"
)

type DB struct {
	log    *slog.Logger
	client *mongo.Client

	users   *mongo.Collection
	tasks   *mongo.Collection
	history *mongo.Collection
}

func New(ctx context.Context, log *slog.Logger, uri, database string) (*DB, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		log.Error("connection problem", "error", err)
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	return &DB{
		log:     log,
		client:  client,
		users:   db.Collection(usersCollection),
		tasks:   db.Collection(tasksCollection),
		history: db.Collection(historyCollection),
	}, nil
}

func (db *DB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return db.client.Disconnect(ctx)
}

func (db *DB) Ping(ctx context.Context) error {
	return db.client.Ping(ctx, nil)
}

// Migrate creates the indexes the queries rely on.
func (db *DB) Migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db.log.Debug("creating mongo indexes")

	if _, err := db.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("create users index: %w", err)
	}

	if _, err := db.tasks.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "assignedTo", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	}); err != nil {
		return fmt.Errorf("create tasks indexes: %w", err)
	}

	if _, err := db.history.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "taskId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	}); err != nil {
		return fmt.Errorf("create history indexes: %w", err)
	}

	db.log.Debug("mongo indexes ready")
	return nil
}

func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("%w: generate id: %w", core.ErrStore, err)
	}
	return id.String(), nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", core.ErrStore, op, err)
}

// Users

type userDoc struct {
	ID           string    `bson:"_id"`
	Username     string    `bson:"username"`
	PasswordHash string    `bson:"passwordHash"`
	Role         string    `bson:"role"`
	CreatedAt    time.Time `bson:"createdAt"`
}

func (d userDoc) toCore() core.User {
	return core.User{
		ID:           d.ID,
		Username:     d.Username,
		PasswordHash: d.PasswordHash,
		Role:         core.Role(d.Role),
		CreatedAt:    d.CreatedAt,
	}
}

func (db *DB) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	id, err := newID()
	if err != nil {
		return core.User{}, err
	}

	doc := userDoc{
		ID:           id,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
	if _, err := db.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return core.User{}, core.ErrUserAlreadyExists
		}
		return core.User{}, storeErr("insert user", err)
	}
	return doc.toCore(), nil
}

func (db *DB) findUser(ctx context.Context, filter bson.M, op string) (core.User, error) {
	var doc userDoc
	if err := db.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return core.User{}, core.ErrUserNotFound
		}
		return core.User{}, storeErr(op, err)
	}
	return doc.toCore(), nil
}

func (db *DB) GetUser(ctx context.Context, id string) (core.User, error) {
	return db.findUser(ctx, bson.M{"_id": id}, "get user")
}

func (db *DB) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	return db.findUser(ctx, bson.M{"username": username}, "get user by username")
}

func (db *DB) ListUsers(ctx context.Context, f core.ListUsersFilter) ([]core.User, error) {
	filter := bson.M{}
	if len(f.IDs) > 0 {
		filter["_id"] = bson.M{"$in": f.IDs}
	}

	cursor, err := db.users.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "username", Value: 1}}))
	if err != nil {
		return nil, storeErr("list users", err)
	}
	defer cursor.Close(ctx)

	var docs []userDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, storeErr("decode users", err)
	}

	out := make([]core.User, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toCore())
	}
	return out, nil
}

// Tasks

type taskDoc struct {
	ID          string    `bson:"_id"`
	Title       string    `bson:"title"`
	Description string    `bson:"description"`
	Status      string    `bson:"status"`
	Type        string    `bson:"type"`
	AssignedTo  []string  `bson:"assignedTo"`
	CreatedBy   string    `bson:"createdBy"`
	CreatedAt   time.Time `bson:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt"`
}

func (d taskDoc) toCore() core.Task {
	assigned := d.AssignedTo
	if assigned == nil {
		assigned = []string{}
	}
	return core.Task{
		ID:          d.ID,
		Title:       d.Title,
		Description: d.Description,
		Status:      core.TaskStatus(d.Status),
		Type:        core.TaskType(d.Type),
		AssignedTo:  assigned,
		CreatedBy:   d.CreatedBy,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func (db *DB) CreateTask(ctx context.Context, t core.Task) (core.Task, error) {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return core.Task{}, core.ErrTaskInvalidArgs
	}
	if t.Status == "" {
		t.Status = core.StatusTODO
	}

	id, err := newID()
	if err != nil {
		return core.Task{}, err
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	doc := taskDoc{
		ID:          id,
		Title:       t.Title,
		Description: strings.TrimSpace(t.Description),
		Status:      string(t.Status),
		Type:        string(t.Type),
		AssignedTo:  append([]string{}, t.AssignedTo...),
		CreatedBy:   t.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := db.tasks.InsertOne(ctx, doc); err != nil {
		return core.Task{}, storeErr("insert task", err)
	}
	return doc.toCore(), nil
}

func (db *DB) GetTask(ctx context.Context, id string) (core.Task, error) {
	var doc taskDoc
	if err := db.tasks.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return core.Task{}, core.ErrTaskNotFound
		}
		return core.Task{}, storeErr("get task", err)
	}
	return doc.toCore(), nil
}

func (db *DB) ListTasks(ctx context.Context, f core.ListTasksFilter) ([]core.Task, error) {
	var and []bson.M

	if len(f.IDs) > 0 {
		and = append(and, bson.M{"_id": bson.M{"$in": f.IDs}})
	}
	if f.Status != nil {
		and = append(and, bson.M{"status": string(*f.Status)})
	}
	if f.AssignedTo != nil {
		and = append(and, bson.M{"assignedTo": *f.AssignedTo})
	}
	if f.VisibleTo != nil {
		and = append(and, bson.M{"$or": []bson.M{
			{"assignedTo": *f.VisibleTo},
			{"type": string(core.TypeGeneral)},
		}})
	}
	if f.Title != "" {
		and = append(and, bson.M{"title": bson.M{"$regex": regexp.QuoteMeta(f.Title), "$options": "i"}})
	}

	filter := bson.M{}
	if len(and) > 0 {
		filter["$and"] = and
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	if f.Offset > 0 {
		opts.SetSkip(int64(f.Offset))
	}

	cursor, err := db.tasks.Find(ctx, filter, opts)
	if err != nil {
		return nil, storeErr("list tasks", err)
	}
	defer cursor.Close(ctx)

	var docs []taskDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, storeErr("decode tasks", err)
	}

	out := make([]core.Task, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toCore())
	}
	return out, nil
}

func (db *DB) UpdateTask(ctx context.Context, t core.Task) (core.Task, error) {
	t.Title = strings.TrimSpace(t.Title)
	if t.ID == "" || t.Title == "" {
		return core.Task{}, core.ErrTaskInvalidArgs
	}

	update := bson.M{"$set": bson.M{
		"title":       t.Title,
		"description": strings.TrimSpace(t.Description),
		"status":      string(t.Status),
		"assignedTo":  append([]string{}, t.AssignedTo...),
		"updatedAt":   time.Now().UTC().Truncate(time.Millisecond),
	}}

	var doc taskDoc
	err := db.tasks.FindOneAndUpdate(ctx, bson.M{"_id": t.ID}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return core.Task{}, core.ErrTaskNotFound
		}
		return core.Task{}, storeErr("update task", err)
	}
	return doc.toCore(), nil
}

func (db *DB) DeleteTask(ctx context.Context, id string) error {
	res, err := db.tasks.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return storeErr("delete task", err)
	}
	if res.DeletedCount == 0 {
		return core.ErrTaskNotFound
	}
	return nil
}

// History

// entryDoc keeps values as their JSON text so structured values survive unchanged.
type entryDoc struct {
	ID          string    `bson:"_id"`
	TaskID      string    `bson:"taskId"`
	Action      string    `bson:"action"`
	Field       string    `bson:"field,omitempty"`
	OldValue    string    `bson:"oldValue,omitempty"`
	NewValue    string    `bson:"newValue,omitempty"`
	Description string    `bson:"description"`
	UserID      string    `bson:"userId"`
	CreatedAt   time.Time `bson:"createdAt"`
}

func valueText(v core.Value) string {
	if v.IsZero() {
		return ""
	}
	return string(v)
}

func textValue(s string) core.Value {
	if s == "" {
		return nil
	}
	return core.Value(s)
}

func (d entryDoc) toCore() core.HistoryEntry {
	return core.HistoryEntry{
		ID:          d.ID,
		TaskID:      d.TaskID,
		Action:      core.Action(d.Action),
		Field:       d.Field,
		OldValue:    textValue(d.OldValue),
		NewValue:    textValue(d.NewValue),
		Description: d.Description,
		UserID:      d.UserID,
		CreatedAt:   d.CreatedAt,
	}
}

func (db *DB) CreateEntry(ctx context.Context, e core.HistoryEntry) (core.HistoryEntry, error) {
	id, err := newID()
	if err != nil {
		return core.HistoryEntry{}, err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	doc := entryDoc{
		ID:          id,
		TaskID:      e.TaskID,
		Action:      string(e.Action),
		Field:       e.Field,
		OldValue:    valueText(e.OldValue),
		NewValue:    valueText(e.NewValue),
		Description: e.Description,
		UserID:      e.UserID,
		CreatedAt:   e.CreatedAt.UTC().Truncate(time.Millisecond),
	}
	if _, err := db.history.InsertOne(ctx, doc); err != nil {
		return core.HistoryEntry{}, storeErr("insert history entry", err)
	}
	return doc.toCore(), nil
}

func (db *DB) GetEntry(ctx context.Context, id string) (core.HistoryEntry, error) {
	var doc entryDoc
	if err := db.history.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return core.HistoryEntry{}, core.ErrEntryNotFound
		}
		return core.HistoryEntry{}, storeErr("get history entry", err)
	}
	return doc.toCore(), nil
}

func (db *DB) ListEntries(ctx context.Context, f core.HistoryFilter) ([]core.HistoryEntry, error) {
	if f.TaskIDs != nil && len(f.TaskIDs) == 0 {
		return []core.HistoryEntry{}, nil
	}

	filter := bson.M{}
	if f.TaskIDs != nil {
		filter["taskId"] = bson.M{"$in": f.TaskIDs}
	}
	if f.Action != nil {
		filter["action"] = string(*f.Action)
	}
	if f.Start != nil || f.End != nil {
		createdAt := bson.M{}
		if f.Start != nil {
			createdAt["$gte"] = *f.Start
		}
		if f.End != nil {
			createdAt["$lte"] = *f.End
		}
		filter["createdAt"] = createdAt
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	if f.Offset > 0 {
		opts.SetSkip(int64(f.Offset))
	}

	cursor, err := db.history.Find(ctx, filter, opts)
	if err != nil {
		return nil, storeErr("list history", err)
	}
	defer cursor.Close(ctx)

	var docs []entryDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, storeErr("decode history", err)
	}

	out := make([]core.HistoryEntry, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toCore())
	}
	return out, nil
}

func (db *DB) DeleteEntry(ctx context.Context, id string) error {
	res, err := db.history.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return storeErr("delete history entry", err)
	}
	if res.DeletedCount == 0 {
		return core.ErrEntryNotFound
	}
	return nil
}

func (db *DB) CountEntriesByAction(ctx context.Context) ([]core.ActionCount, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$action"}, {Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}}}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
	}

	cursor, err := db.history.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, storeErr("count history", err)
	}
	defer cursor.Close(ctx)

	var out []core.ActionCount
	if err := cursor.All(ctx, &out); err != nil {
		return nil, storeErr("decode history counts", err)
	}
	return out, nil
}
