package postgres

// SQL-миграции встроены в код для упрощения деплоя.
var migrations = []struct {
	version int
	name    string
	sql     string
}{
	{1, "accounts", migration001Accounts},
	{2, "ledger_entries", migration002Ledger},
	{3, "promotions_claims", migration003Promotions},
	{4, "groups", migration004Groups},
	{5, "feature_flags", migration005Flags},
	{6, "operators", migration006Operators},
}

var migration001Accounts = `
CREATE TABLE IF NOT EXISTS accounts (
    user_id BIGINT PRIMARY KEY,
    username VARCHAR(255) NOT NULL DEFAULT '',
    credits BIGINT NOT NULL DEFAULT 0 CHECK (credits >= 0),
    referral_credits BIGINT NOT NULL DEFAULT 0 CHECK (referral_credits >= 0),
    invited_by BIGINT,
    is_premium BOOLEAN NOT NULL DEFAULT FALSE,
    premium_expiry TIMESTAMPTZ,
    is_banned BOOLEAN NOT NULL DEFAULT FALSE,
    daily_group_runs INTEGER NOT NULL DEFAULT 2 CHECK (daily_group_runs >= 0),
    image_broadcasts_left INTEGER NOT NULL DEFAULT 0 CHECK (image_broadcasts_left >= 0),
    normal_text TEXT,
    normal_url TEXT,
    normal_chat_id BIGINT,
    normal_message_id INTEGER,
    force_join_channel_id BIGINT,
    views_received BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_accounts_views ON accounts(views_received DESC) WHERE is_banned = FALSE;
CREATE INDEX IF NOT EXISTS idx_accounts_premium_expiry ON accounts(premium_expiry) WHERE is_premium = TRUE;
`

var migration002Ledger = `
CREATE TABLE IF NOT EXISTS ledger_entries (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES accounts(user_id),
    amount BIGINT NOT NULL,
    entry_type VARCHAR(50) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_user ON ledger_entries(user_id, created_at DESC);
`

var migration003Promotions = `
CREATE TABLE IF NOT EXISTS promotions (
    id BIGSERIAL PRIMARY KEY,
    owner_id BIGINT NOT NULL REFERENCES accounts(user_id),
    promo_type VARCHAR(32) NOT NULL CHECK (promo_type IN ('normal_link', 'force_join')),
    budget INTEGER NOT NULL CHECK (budget >= 0),
    text TEXT,
    url TEXT,
    source_chat_id BIGINT,
    source_message_id INTEGER,
    channel_id BIGINT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_promotions_active ON promotions(id) WHERE budget > 0;
CREATE TABLE IF NOT EXISTS claims (
    user_id BIGINT NOT NULL REFERENCES accounts(user_id),
    promotion_id BIGINT NOT NULL REFERENCES promotions(id),
    claimed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, promotion_id)
);
`

var migration004Groups = `
CREATE TABLE IF NOT EXISTS groups (
    chat_id BIGINT PRIMARY KEY,
    title VARCHAR(255) NOT NULL DEFAULT '',
    is_admin BOOLEAN NOT NULL DEFAULT FALSE,
    added_by BIGINT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_groups_admin ON groups(chat_id) WHERE is_admin = TRUE;
`

var migration005Flags = `
CREATE TABLE IF NOT EXISTS feature_flags (
    name VARCHAR(64) PRIMARY KEY,
    enabled BOOLEAN NOT NULL DEFAULT TRUE,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

var migration006Operators = `
CREATE TABLE IF NOT EXISTS operator_sessions (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    token_hash VARCHAR(128) UNIQUE NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    expires_at TIMESTAMPTZ NOT NULL,
    last_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    revoked_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_operator_sessions_user ON operator_sessions(user_id, expires_at DESC);
CREATE TABLE IF NOT EXISTS operator_login_attempts (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    success BOOLEAN NOT NULL DEFAULT FALSE,
    attempted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_operator_login_attempts_user ON operator_login_attempts(user_id, attempted_at DESC);
`
