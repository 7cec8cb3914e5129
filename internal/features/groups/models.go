// Package groups ведёт реестр групп, куда добавлен бот.
// Рассылка по группам идёт только туда, где бот администратор.
// models.go описывает структуры данных таблицы groups.
package groups

import "time"

// Group — группа, в которую добавили бота.
type Group struct {
	ChatID    int64     `db:"chat_id"`
	Title     string    `db:"title"`
	IsAdmin   bool      `db:"is_admin"` // Бот — администратор, можно рассылать
	AddedBy   int64     `db:"added_by"` // Кто добавил бота
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// BotStatusChange — изменение статуса бота в группе (my_chat_member).
type BotStatusChange struct {
	ChatID     int64
	Title      string
	ActorID    int64 // Кто изменил статус
	ActorIsBot bool
	Status     string // Новый статус бота
}

// Outcome — что произошло с группой.
type Outcome struct {
	Group      *Group
	Created    bool  // Группа зарегистрирована впервые
	Bonus      int64 // Начислено добавившему (0 — без бонуса)
	NeedsAdmin bool  // Бот в группе, но без прав администратора
	Removed    bool  // Бота удалили из группы
}
