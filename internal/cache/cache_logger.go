package cache

import (
	"context"
	"log/slog"
)

// SafeInvalidatePattern safely invalidates cache pattern with logging
func SafeInvalidatePattern(ctx context.Context, helper *CacheHelper, pattern string) {
	if err := helper.InvalidatePattern(ctx, pattern); err != nil {
		slog.ErrorContext(ctx, "Failed to invalidate cache pattern",
			"error", err,
			"pattern", pattern)
	}
}

// SafeDelete safely deletes cache keys with logging
func SafeDelete(ctx context.Context, helper *CacheHelper, keys ...string) {
	if err := helper.Delete(ctx, keys...); err != nil {
		slog.ErrorContext(ctx, "Failed to delete cache keys",
			"error", err,
			"keys", keys)
	}
}

// InvalidateCourseCache drops the cached course and every dashboard projection,
// since any course write can move the per-status and enrollment counters.
func InvalidateCourseCache(ctx context.Context, cm *CacheManager, courseID string) {
	SafeDelete(ctx, cm.Course, "id:"+courseID)
	SafeInvalidatePattern(ctx, cm.Stats, "*")
}

// InvalidateUserCache drops the cached directory record and the user counters.
func InvalidateUserCache(ctx context.Context, cm *CacheManager, userID string) {
	SafeDelete(ctx, cm.User, "id:"+userID)
	SafeInvalidatePattern(ctx, cm.Stats, "*")
}
