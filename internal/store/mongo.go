package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"teamworks/api/internal/ids"
)

const (
	colUsers         = "users"
	colProjects      = "projects"
	colTasks         = "backlog_items"
	colComments      = "task_comments"
	colNotifications = "notifications"
	colInvitations   = "invitations"
	colSessions      = "refresh_sessions"
	colRevoked       = "revoked_tokens"
	colAttachments   = "task_attachments"
)

// MongoStore keeps the same records as PostgresStore in MongoDB collections.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongoStore(client *mongo.Client, db *mongo.Database) *MongoStore {
	return &MongoStore{client: client, db: db}
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// EnsureIndexes creates the unique and lookup indexes the store relies on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		colUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colProjects: {
			{Keys: bson.D{{Key: "ownerId", Value: 1}}},
			{Keys: bson.D{{Key: "memberIds", Value: 1}}},
		},
		colTasks: {
			{Keys: bson.D{{Key: "projectId", Value: 1}, {Key: "createdAt", Value: 1}}},
			{Keys: bson.D{{Key: "projectId", Value: 1}, {Key: "dependencies", Value: 1}}},
			{Keys: bson.D{{Key: "assignedTo", Value: 1}}},
		},
		colComments: {
			{Keys: bson.D{{Key: "taskId", Value: 1}, {Key: "createdAt", Value: 1}}},
		},
		colNotifications: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		colInvitations: {
			{
				Keys: bson.D{{Key: "projectId", Value: 1}, {Key: "email", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"status": InvitationPending}),
			},
		},
		colSessions: {
			{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
		},
		colRevoked: {
			{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
		},
		colAttachments: {
			{Keys: bson.D{{Key: "taskId", Value: 1}}},
		},
	}
	for collection, models := range indexes {
		if _, err := s.db.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("ensure indexes on %s: %w", collection, err)
		}
	}
	return nil
}

func mongoErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return ErrConflict
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter any, opts *options.FindOptions, op string) ([]T, error) {
	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	items := make([]T, 0)
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return items, nil
}

func sortBy(field string, dir int) *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: field, Value: dir}})
}

func normalizeTask(task Task) Task {
	if task.Dependencies == nil {
		task.Dependencies = []ids.ID{}
	}
	return task
}

func normalizeProject(project Project) Project {
	if project.MemberIDs == nil {
		project.MemberIDs = []ids.ID{}
	}
	return project
}

// Users

func (s *MongoStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.Collection(colUsers).InsertOne(ctx, user)
	return mongoErr("create user", err)
}

func (s *MongoStore) GetUserByID(ctx context.Context, userID ids.ID) (User, error) {
	var user User
	err := s.db.Collection(colUsers).FindOne(ctx, bson.M{"_id": userID}).Decode(&user)
	return user, mongoErr("get user", err)
}

func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.Collection(colUsers).FindOne(ctx, bson.M{"email": email}).Decode(&user)
	return user, mongoErr("get user by email", err)
}

func (s *MongoStore) ListUsers(ctx context.Context) ([]User, error) {
	return findAll[User](ctx, s.db.Collection(colUsers), bson.M{}, sortBy("fullName", 1), "list users")
}

func (s *MongoStore) ListUsersByIDs(ctx context.Context, userIDs []ids.ID) ([]User, error) {
	if len(userIDs) == 0 {
		return []User{}, nil
	}
	return findAll[User](ctx, s.db.Collection(colUsers), bson.M{"_id": bson.M{"$in": userIDs}}, sortBy("fullName", 1), "list users")
}

func (s *MongoStore) UpdateUser(ctx context.Context, user User) error {
	result, err := s.db.Collection(colUsers).UpdateByID(ctx, user.ID, bson.M{"$set": bson.M{
		"fullName":     user.FullName,
		"email":        user.Email,
		"passwordHash": user.PasswordHash,
		"updatedAt":    user.UpdatedAt,
	}})
	if err != nil {
		return mongoErr("update user", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Sessions

type mongoSession struct {
	TokenHash string     `bson:"_id"`
	UserID    ids.ID     `bson:"userId"`
	ExpiresAt time.Time  `bson:"expiresAt"`
	RevokedAt *time.Time `bson:"revokedAt"`
}

func (s *MongoStore) SaveRefreshSession(ctx context.Context, tokenHash string, userID ids.ID, expiresAt time.Time) error {
	_, err := s.db.Collection(colSessions).ReplaceOne(ctx,
		bson.M{"_id": tokenHash},
		mongoSession{TokenHash: tokenHash, UserID: userID, ExpiresAt: expiresAt},
		options.Replace().SetUpsert(true),
	)
	return mongoErr("save refresh session", err)
}

func (s *MongoStore) LookupRefreshSession(ctx context.Context, tokenHash string) (ids.ID, error) {
	var session mongoSession
	err := s.db.Collection(colSessions).FindOne(ctx, bson.M{
		"_id":       tokenHash,
		"revokedAt": nil,
		"expiresAt": bson.M{"$gt": time.Now().UTC()},
	}).Decode(&session)
	if err != nil {
		return "", mongoErr("lookup refresh session", err)
	}
	return session.UserID, nil
}

func (s *MongoStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.Collection(colSessions).UpdateByID(ctx, tokenHash, bson.M{"$set": bson.M{"revokedAt": time.Now().UTC()}})
	return mongoErr("revoke refresh session", err)
}

func (s *MongoStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.Collection(colRevoked).UpdateByID(ctx, jti,
		bson.M{"$setOnInsert": bson.M{"expiresAt": exp}},
		options.Update().SetUpsert(true),
	)
	return mongoErr("revoke access token", err)
}

func (s *MongoStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	count, err := s.db.Collection(colRevoked).CountDocuments(ctx, bson.M{"_id": jti}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return count > 0, nil
}

// Projects

func (s *MongoStore) CreateProject(ctx context.Context, project Project) error {
	_, err := s.db.Collection(colProjects).InsertOne(ctx, normalizeProject(project))
	return mongoErr("create project", err)
}

func (s *MongoStore) GetProject(ctx context.Context, projectID ids.ID) (Project, error) {
	var project Project
	if err := s.db.Collection(colProjects).FindOne(ctx, bson.M{"_id": projectID}).Decode(&project); err != nil {
		return Project{}, mongoErr("get project", err)
	}
	return normalizeProject(project), nil
}

func (s *MongoStore) ListProjectsForUser(ctx context.Context, userID ids.ID) ([]Project, error) {
	filter := bson.M{"$or": bson.A{bson.M{"ownerId": userID}, bson.M{"memberIds": userID}}}
	items, err := findAll[Project](ctx, s.db.Collection(colProjects), filter, sortBy("createdAt", -1), "list projects")
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i] = normalizeProject(items[i])
	}
	return items, nil
}

func (s *MongoStore) ListAllProjects(ctx context.Context) ([]Project, error) {
	return findAll[Project](ctx, s.db.Collection(colProjects), bson.M{}, sortBy("createdAt", -1), "list projects")
}

func (s *MongoStore) UpdateProject(ctx context.Context, project Project) error {
	result, err := s.db.Collection(colProjects).UpdateByID(ctx, project.ID, bson.M{"$set": bson.M{
		"name":        project.Name,
		"description": project.Description,
		"ownerId":     project.OwnerID,
		"updatedAt":   project.UpdatedAt,
	}})
	if err != nil {
		return mongoErr("update project", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) AddProjectMember(ctx context.Context, projectID, userID ids.ID) error {
	result, err := s.db.Collection(colProjects).UpdateByID(ctx, projectID, bson.M{"$addToSet": bson.M{"memberIds": userID}})
	if err != nil {
		return mongoErr("add project member", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) RemoveProjectMember(ctx context.Context, projectID, userID ids.ID) (bool, error) {
	result, err := s.db.Collection(colProjects).UpdateByID(ctx, projectID, bson.M{"$pull": bson.M{"memberIds": userID}})
	if err != nil {
		return false, mongoErr("remove project member", err)
	}
	return result.ModifiedCount > 0, nil
}

// DeleteProject removes the project and every record hanging off it.
func (s *MongoStore) DeleteProject(ctx context.Context, projectID ids.ID) error {
	result, err := s.db.Collection(colProjects).DeleteOne(ctx, bson.M{"_id": projectID})
	if err != nil {
		return mongoErr("delete project", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	byProject := bson.M{"projectId": projectID}
	for _, collection := range []string{colTasks, colComments, colInvitations, colAttachments, colNotifications} {
		if _, err := s.db.Collection(collection).DeleteMany(ctx, byProject); err != nil {
			return fmt.Errorf("%w: delete project %s: %w", ErrPartialDelete, collection, err)
		}
	}
	return nil
}

// Tasks

func (s *MongoStore) InsertTask(ctx context.Context, task Task) error {
	_, err := s.db.Collection(colTasks).InsertOne(ctx, normalizeTask(task))
	return mongoErr("insert task", err)
}

func (s *MongoStore) FindTask(ctx context.Context, taskID, projectID ids.ID) (Task, error) {
	var task Task
	if err := s.db.Collection(colTasks).FindOne(ctx, bson.M{"_id": taskID, "projectId": projectID}).Decode(&task); err != nil {
		return Task{}, mongoErr("find task", err)
	}
	return normalizeTask(task), nil
}

func (s *MongoStore) ListTasks(ctx context.Context, projectID ids.ID, filter TaskFilter) ([]Task, error) {
	return s.ListTasksForProjects(ctx, []ids.ID{projectID}, filter)
}

func (s *MongoStore) ListTasksForProjects(ctx context.Context, projectIDs []ids.ID, filter TaskFilter) ([]Task, error) {
	if len(projectIDs) == 0 {
		return []Task{}, nil
	}
	query := bson.M{"projectId": bson.M{"$in": projectIDs}}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.Priority != "" {
		query["priority"] = filter.Priority
	}
	switch {
	case filter.Unassigned:
		query["assignedTo"] = nil
	case filter.AssignedTo != nil:
		query["assignedTo"] = *filter.AssignedTo
	}
	return s.findTasks(ctx, query)
}

func (s *MongoStore) ListAllTasks(ctx context.Context) ([]Task, error) {
	return s.findTasks(ctx, bson.M{})
}

func (s *MongoStore) findTasks(ctx context.Context, filter bson.M) ([]Task, error) {
	items, err := findAll[Task](ctx, s.db.Collection(colTasks), filter, sortBy("createdAt", 1), "list tasks")
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i] = normalizeTask(items[i])
	}
	return items, nil
}

func (s *MongoStore) UpdateTask(ctx context.Context, task Task) error {
	task = normalizeTask(task)
	result, err := s.db.Collection(colTasks).UpdateOne(ctx,
		bson.M{"_id": task.ID, "projectId": task.ProjectID},
		bson.M{"$set": bson.M{
			"title":        task.Title,
			"description":  task.Description,
			"status":       task.Status,
			"priority":     task.Priority,
			"assignedTo":   task.AssignedTo,
			"startDate":    task.StartDate,
			"dueDate":      task.DueDate,
			"progress":     task.Progress,
			"dependencies": task.Dependencies,
			"updatedAt":    task.UpdatedAt,
		}},
	)
	if err != nil {
		return mongoErr("update task", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) UpdateTaskDependencies(ctx context.Context, taskID ids.ID, dependencies []ids.ID, updatedAt time.Time) error {
	if dependencies == nil {
		dependencies = []ids.ID{}
	}
	result, err := s.db.Collection(colTasks).UpdateByID(ctx, taskID, bson.M{"$set": bson.M{
		"dependencies": dependencies,
		"updatedAt":    updatedAt,
	}})
	if err != nil {
		return mongoErr("update task dependencies", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) RemoveDependencyReferences(ctx context.Context, projectID, removedID ids.ID, updatedAt time.Time) (int64, error) {
	result, err := s.db.Collection(colTasks).UpdateMany(ctx,
		bson.M{"projectId": projectID, "dependencies": removedID},
		bson.M{
			"$pull": bson.M{"dependencies": removedID},
			"$set":  bson.M{"updatedAt": updatedAt},
		},
	)
	if err != nil {
		return 0, fmt.Errorf("remove dependency references: %w", err)
	}
	return result.ModifiedCount, nil
}

func (s *MongoStore) DeleteTask(ctx context.Context, taskID, projectID ids.ID) error {
	result, err := s.db.Collection(colTasks).DeleteOne(ctx, bson.M{"_id": taskID, "projectId": projectID})
	if err != nil {
		return mongoErr("delete task", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	byTask := bson.M{"taskId": taskID}
	if _, err := s.db.Collection(colComments).DeleteMany(ctx, byTask); err != nil {
		return fmt.Errorf("%w: delete task comments: %w", ErrPartialDelete, err)
	}
	if _, err := s.db.Collection(colAttachments).DeleteMany(ctx, byTask); err != nil {
		return fmt.Errorf("%w: delete task attachments: %w", ErrPartialDelete, err)
	}
	return nil
}

func (s *MongoStore) UnassignTasks(ctx context.Context, projectID, userID ids.ID, updatedAt time.Time) (int64, error) {
	result, err := s.db.Collection(colTasks).UpdateMany(ctx,
		bson.M{"projectId": projectID, "assignedTo": userID},
		bson.M{"$set": bson.M{"assignedTo": nil, "updatedAt": updatedAt}},
	)
	if err != nil {
		return 0, fmt.Errorf("unassign tasks: %w", err)
	}
	return result.ModifiedCount, nil
}

// Comments

func (s *MongoStore) InsertComment(ctx context.Context, comment Comment) error {
	_, err := s.db.Collection(colComments).InsertOne(ctx, comment)
	return mongoErr("insert comment", err)
}

func (s *MongoStore) ListComments(ctx context.Context, taskID ids.ID) ([]Comment, error) {
	return findAll[Comment](ctx, s.db.Collection(colComments), bson.M{"taskId": taskID}, sortBy("createdAt", 1), "list comments")
}

// Notifications

func (s *MongoStore) InsertNotification(ctx context.Context, n Notification) error {
	_, err := s.db.Collection(colNotifications).InsertOne(ctx, n)
	return mongoErr("insert notification", err)
}

func (s *MongoStore) ListNotifications(ctx context.Context, userID ids.ID, unreadOnly bool) ([]Notification, error) {
	filter := bson.M{"userId": userID}
	if unreadOnly {
		filter["read"] = false
	}
	return findAll[Notification](ctx, s.db.Collection(colNotifications), filter, sortBy("createdAt", -1), "list notifications")
}

func (s *MongoStore) MarkNotificationRead(ctx context.Context, notificationID, userID ids.ID) (bool, error) {
	result, err := s.db.Collection(colNotifications).UpdateOne(ctx,
		bson.M{"_id": notificationID, "userId": userID},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return false, mongoErr("mark notification read", err)
	}
	return result.MatchedCount > 0, nil
}

func (s *MongoStore) MarkAllNotificationsRead(ctx context.Context, userID ids.ID) (int64, error) {
	result, err := s.db.Collection(colNotifications).UpdateMany(ctx,
		bson.M{"userId": userID, "read": false},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return result.ModifiedCount, nil
}

// Invitations

func (s *MongoStore) InsertInvitation(ctx context.Context, inv Invitation) error {
	_, err := s.db.Collection(colInvitations).InsertOne(ctx, inv)
	return mongoErr("insert invitation", err)
}

func (s *MongoStore) ListPendingInvitations(ctx context.Context, email string) ([]Invitation, error) {
	return findAll[Invitation](ctx, s.db.Collection(colInvitations),
		bson.M{"email": email, "status": InvitationPending},
		sortBy("createdAt", -1), "list invitations")
}

func (s *MongoStore) GetPendingInvitation(ctx context.Context, projectID ids.ID, email string) (Invitation, error) {
	var inv Invitation
	err := s.db.Collection(colInvitations).FindOne(ctx, bson.M{
		"projectId": projectID,
		"email":     email,
		"status":    InvitationPending,
	}).Decode(&inv)
	return inv, mongoErr("get invitation", err)
}

func (s *MongoStore) UpdateInvitationStatus(ctx context.Context, invitationID ids.ID, status string, updatedAt time.Time) error {
	result, err := s.db.Collection(colInvitations).UpdateByID(ctx, invitationID, bson.M{"$set": bson.M{
		"status":    status,
		"updatedAt": updatedAt,
	}})
	if err != nil {
		return mongoErr("update invitation", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Attachments

func (s *MongoStore) InsertAttachment(ctx context.Context, a Attachment) error {
	_, err := s.db.Collection(colAttachments).InsertOne(ctx, a)
	return mongoErr("insert attachment", err)
}

func (s *MongoStore) ListAttachments(ctx context.Context, taskID ids.ID) ([]Attachment, error) {
	return findAll[Attachment](ctx, s.db.Collection(colAttachments), bson.M{"taskId": taskID}, sortBy("createdAt", 1), "list attachments")
}

func (s *MongoStore) GetAttachment(ctx context.Context, attachmentID, taskID ids.ID) (Attachment, error) {
	var a Attachment
	err := s.db.Collection(colAttachments).FindOne(ctx, bson.M{"_id": attachmentID, "taskId": taskID}).Decode(&a)
	return a, mongoErr("get attachment", err)
}

// Search fallback

func containsPattern(text string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(strings.TrimSpace(text)), Options: "i"}
}

func (s *MongoStore) SearchTasks(ctx context.Context, text string, projectIDs []ids.ID) ([]SearchHit, error) {
	if len(projectIDs) == 0 || strings.TrimSpace(text) == "" {
		return []SearchHit{}, nil
	}
	pattern := containsPattern(text)
	tasks, err := s.findTasks(ctx, bson.M{
		"projectId": bson.M{"$in": projectIDs},
		"$or": bson.A{
			bson.M{"title": pattern},
			bson.M{"description": pattern},
		},
	})
	if err != nil {
		return nil, err
	}
	hits := make([]SearchHit, 0, len(tasks))
	for _, task := range tasks {
		hits = append(hits, SearchHit{Kind: "task", ID: task.ID, ProjectID: task.ProjectID, Title: task.Title, Snippet: task.Description, UpdatedAt: task.UpdatedAt})
	}
	return hits, nil
}

func (s *MongoStore) SearchProjects(ctx context.Context, text string, projectIDs []ids.ID) ([]SearchHit, error) {
	if len(projectIDs) == 0 || strings.TrimSpace(text) == "" {
		return []SearchHit{}, nil
	}
	pattern := containsPattern(text)
	projects, err := findAll[Project](ctx, s.db.Collection(colProjects), bson.M{
		"_id": bson.M{"$in": projectIDs},
		"$or": bson.A{
			bson.M{"name": pattern},
			bson.M{"description": pattern},
		},
	}, sortBy("updatedAt", -1), "search projects")
	if err != nil {
		return nil, err
	}
	hits := make([]SearchHit, 0, len(projects))
	for _, project := range projects {
		hits = append(hits, SearchHit{Kind: "project", ID: project.ID, ProjectID: project.ID, Title: project.Name, Snippet: project.Description, UpdatedAt: project.UpdatedAt})
	}
	return hits, nil
}
