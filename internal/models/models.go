// Package models defines the persisted records of the service.
package models

// All lists every model in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Profile{},
		&OAuthAccount{},
		&PasswordReset{},
		&Track{},
		&Like{},
		&Repost{},
		&Follow{},
		&Comment{},
		&Playlist{},
		&PlaylistTrack{},
		&Notification{},
		&ListeningHistory{},
		&Play{},
		&Report{},
	}
}
