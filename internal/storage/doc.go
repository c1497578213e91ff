// Package storage provides the key-value persistence layer used by the bot.
//
// Every backend implements Store. Keys are plain strings grouped by a
// "<bucket>/" prefix so callers can Scan one bucket at a time:
//   - keywords/<owner_id>   keyword subscriptions of one chat user
package storage
