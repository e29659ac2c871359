// Package usermanager coordinates mutations of the user collection with the
// cached views derived from it. Every mutation commits to the document store
// first, then synchronously rebuilds the affected views before the caller is
// told the mutation succeeded, so the staleness window is bounded by "time
// since last mutation or refresh tick".
package usermanager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-usercache/pkg/audit"
	"github.com/illmade-knight/go-usercache/pkg/docstore"
	"github.com/illmade-knight/go-usercache/pkg/imagestore"
	"github.com/illmade-knight/go-usercache/pkg/notify"
	"github.com/illmade-knight/go-usercache/pkg/types"
	"github.com/illmade-knight/go-usercache/pkg/viewcache"
)

// Cache keys for the published views.
const (
	UsersViewKey = "users"
	BlogsViewKey = "allBlogs"
)

// blogOwnerField is the blog document field holding the owning user's ID.
const blogOwnerField = "userId"

// UserHandlers are the docstore accessors for the User record type.
func UserHandlers() docstore.Handlers[types.User] {
	return docstore.Handlers[types.User]{
		ID:    func(u types.User) string { return u.ID },
		SetID: func(u types.User, id string) types.User { u.ID = id; return u },
		Field: func(u types.User, field string) any {
			switch field {
			case "username":
				return u.Username
			case "email":
				return u.Email
			case "role":
				return u.Role
			default:
				return nil
			}
		},
	}
}

// BlogHandlers are the docstore accessors for the Blog record type.
func BlogHandlers() docstore.Handlers[types.Blog] {
	return docstore.Handlers[types.Blog]{
		ID:    func(b types.Blog) string { return b.ID },
		SetID: func(b types.Blog, id string) types.Blog { b.ID = id; return b },
		Field: func(b types.Blog, field string) any {
			if field == blogOwnerField {
				return b.UserID
			}
			return nil
		},
	}
}

// Coordinator owns the write path. It is the sole trigger of rebuilds for
// the users and blogs view keys outside the periodic refresh, and both go
// through the same single-flight rebuilders.
type Coordinator struct {
	users     docstore.Gateway[types.User]
	blogs     docstore.Gateway[types.Blog]
	userViews *viewcache.Rebuilder[types.User]
	blogViews *viewcache.Rebuilder[types.Blog]
	notifier  notify.Publisher
	auditor   *audit.Recorder
	images    imagestore.Store
	logger    zerolog.Logger
}

// NewCoordinator creates a Coordinator. The notifier, auditor and image
// store are optional collaborators attached via the With methods.
func NewCoordinator(
	users docstore.Gateway[types.User],
	blogs docstore.Gateway[types.Blog],
	userViews *viewcache.Rebuilder[types.User],
	blogViews *viewcache.Rebuilder[types.Blog],
	logger zerolog.Logger,
) (*Coordinator, error) {
	if users == nil || blogs == nil || userViews == nil || blogViews == nil {
		return nil, fmt.Errorf("gateways and rebuilders cannot be nil")
	}
	return &Coordinator{
		users:     users,
		blogs:     blogs,
		userViews: userViews,
		blogViews: blogViews,
		logger:    logger.With().Str("component", "Coordinator").Logger(),
	}, nil
}

// WithNotifier attaches an invalidation publisher.
func (c *Coordinator) WithNotifier(publisher notify.Publisher) *Coordinator {
	c.notifier = publisher
	return c
}

// WithAuditor attaches a mutation audit recorder.
func (c *Coordinator) WithAuditor(recorder *audit.Recorder) *Coordinator {
	c.auditor = recorder
	return c
}

// WithImageStore attaches a profile image store.
func (c *Coordinator) WithImageStore(store imagestore.Store) *Coordinator {
	c.images = store
	return c
}

// CreateUser inserts a new user and rebuilds the users view before
// returning. The optional image bytes are stored first so the record can
// carry its object path from the start. Image objects are keyed by the
// record ID, so when an image is present the ID is minted here rather than
// by the store; update and delete then address the same object.
func (c *Coordinator) CreateUser(ctx context.Context, user types.User, image []byte) (types.User, error) {
	var zero types.User
	if c.images != nil && len(image) > 0 {
		if user.ID == "" {
			user.ID = uuid.NewString()
		}
		imagePath, err := c.images.Save(ctx, user.ID, image)
		if err != nil {
			return zero, fmt.Errorf("store profile image: %w", err)
		}
		user.ProfileImagePath = imagePath
	}

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	created, err := c.users.Insert(ctx, user)
	if err != nil {
		return zero, fmt.Errorf("insert user: %w", err)
	}

	c.rebuildUsers(ctx)
	c.afterMutation(ctx, UsersViewKey, notify.OpCreate, created.ID)
	return created, nil
}

// UpdateUser overwrites an existing user and rebuilds the users view before
// returning. A missing user surfaces as docstore.ErrNotFound.
func (c *Coordinator) UpdateUser(ctx context.Context, id string, user types.User, image []byte) (types.User, error) {
	var zero types.User
	if c.images != nil && len(image) > 0 {
		imagePath, err := c.images.Save(ctx, id, image)
		if err != nil {
			return zero, fmt.Errorf("store profile image: %w", err)
		}
		user.ProfileImagePath = imagePath
	}
	user.UpdatedAt = time.Now().UTC()

	updated, err := c.users.Update(ctx, id, user)
	if err != nil {
		return zero, fmt.Errorf("update user %s: %w", id, err)
	}

	c.rebuildUsers(ctx)
	c.afterMutation(ctx, UsersViewKey, notify.OpUpdate, id)
	return updated, nil
}

// DeleteUser removes a user, cascade-deletes the blogs they own, and
// rebuilds both views before returning. A missing user surfaces as
// docstore.ErrNotFound without touching the cascade.
func (c *Coordinator) DeleteUser(ctx context.Context, id string) error {
	if err := c.users.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("delete user %s: %w", id, err)
	}

	deleted, cascadeErr := c.blogs.DeleteMany(ctx, blogOwnerField, id)
	if cascadeErr == nil {
		c.logger.Debug().Str("user_id", id).Int("blogs_deleted", deleted).Msg("Cascade delete complete.")
	}

	if c.images != nil {
		if err := c.images.Delete(ctx, id); err != nil {
			// The image is orphaned, not inconsistent; log and move on.
			c.logger.Warn().Err(err).Str("user_id", id).Msg("Failed to delete profile image.")
		}
	}

	// The primary delete committed, so the users view must be rebuilt even
	// if the cascade failed.
	c.rebuildUsers(ctx)
	c.rebuildBlogs(ctx)
	c.afterMutation(ctx, UsersViewKey, notify.OpDelete, id)
	c.afterMutation(ctx, BlogsViewKey, notify.OpDelete, "")

	if cascadeErr != nil {
		return fmt.Errorf("cascade delete blogs for user %s: %w", id, cascadeErr)
	}
	return nil
}

// ForceRefresh rebuilds both views unconditionally. It is the administrative
// equivalent of one periodic refresh tick and is idempotent.
func (c *Coordinator) ForceRefresh(ctx context.Context) error {
	_, usersErr := c.userViews.Rebuild(ctx)
	_, blogsErr := c.blogViews.Rebuild(ctx)
	return errors.Join(usersErr, blogsErr)
}

// Refresh satisfies viewcache.Refresher so the periodic RefreshService can
// drive the same rebuild routine as the mutation path.
func (c *Coordinator) Refresh(ctx context.Context) error {
	return c.ForceRefresh(ctx)
}

// Stats reports the cached and live sizes of both collections. The live
// counts intentionally re-read the store so the endpoint can expose drift
// between the cache and the system of record.
type Stats struct {
	CachedUsers      int       `json:"cachedUsers"`
	LiveUsers        int       `json:"liveUsers"`
	UsersRebuiltAt   time.Time `json:"usersRebuiltAt"`
	CachedBlogs      int       `json:"cachedBlogs"`
	LiveBlogs        int       `json:"liveBlogs"`
	BlogsRebuiltAt   time.Time `json:"blogsRebuiltAt"`
	UsersViewPresent bool      `json:"usersViewPresent"`
	BlogsViewPresent bool      `json:"blogsViewPresent"`
}

// Stats gathers cache/store figures for the admin endpoint.
func (c *Coordinator) Stats(ctx context.Context) (Stats, error) {
	var stats Stats

	if view, ok, err := c.userViews.Cached(ctx); err == nil && ok {
		stats.UsersViewPresent = true
		stats.CachedUsers = view.Total
		stats.UsersRebuiltAt = view.RebuiltAt
	}
	if view, ok, err := c.blogViews.Cached(ctx); err == nil && ok {
		stats.BlogsViewPresent = true
		stats.CachedBlogs = view.Total
		stats.BlogsRebuiltAt = view.RebuiltAt
	}

	liveUsers, err := c.users.Count(ctx)
	if err != nil {
		return stats, fmt.Errorf("count users: %w", err)
	}
	stats.LiveUsers = liveUsers

	liveBlogs, err := c.blogs.Count(ctx)
	if err != nil {
		return stats, fmt.Errorf("count blogs: %w", err)
	}
	stats.LiveBlogs = liveBlogs

	return stats, nil
}

// rebuildUsers synchronously rebuilds the users view. The caller's mutation
// has already committed, so a failed rebuild is logged and the stale view is
// left for the next refresh tick or mutation to heal.
func (c *Coordinator) rebuildUsers(ctx context.Context) {
	if _, err := c.userViews.Rebuild(ctx); err != nil {
		c.logger.Error().Err(err).Msg("Users view rebuild failed after committed mutation; stale view retained.")
	}
}

// rebuildBlogs rebuilds the blogs view with the same failure semantics.
func (c *Coordinator) rebuildBlogs(ctx context.Context) {
	if _, err := c.blogViews.Rebuild(ctx); err != nil {
		c.logger.Error().Err(err).Msg("Blogs view rebuild failed after committed mutation; stale view retained.")
	}
}

// afterMutation emits the best-effort invalidation event and audit record.
func (c *Coordinator) afterMutation(ctx context.Context, collection, op, recordID string) {
	occurredAt := time.Now().UTC()
	if c.notifier != nil {
		event := notify.InvalidationEvent{
			Collection: collection,
			Op:         op,
			RecordID:   recordID,
			OccurredAt: occurredAt,
		}
		if err := c.notifier.PublishInvalidation(ctx, event); err != nil {
			c.logger.Warn().Err(err).Str("collection", collection).Msg("Failed to publish invalidation event.")
		}
	}
	if c.auditor != nil {
		c.auditor.Record(&audit.MutationEvent{
			Collection: collection,
			Op:         op,
			RecordID:   recordID,
			OccurredAt: occurredAt,
		})
	}
}
