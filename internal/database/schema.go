package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order by Migrate.  Every statement is idempotent.
//
// beat_licenses carries the two purchase guarantees: one license per
// (user, beat, tier), and one exclusive license per beat through the
// generated exclusive_beat_id column, which is NULL for other tiers and
// therefore outside the unique index.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
        id          VARCHAR(64)  NOT NULL PRIMARY KEY,
        email       VARCHAR(255) NOT NULL,
        name        VARCHAR(255) NULL,
        first_name  VARCHAR(255) NULL,
        created_at  DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS stores (
        id            VARCHAR(64)  NOT NULL PRIMARY KEY,
        owner_user_id VARCHAR(64)  NOT NULL,
        name          VARCHAR(255) NOT NULL,
        slug          VARCHAR(255) NOT NULL,
        UNIQUE KEY uq_stores_owner (owner_user_id),
        UNIQUE KEY uq_stores_slug (slug)
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS beats (
        id                    VARCHAR(64)  NOT NULL PRIMARY KEY,
        owner_user_id         VARCHAR(64)  NOT NULL,
        title                 VARCHAR(255) NOT NULL,
        image_url             VARCHAR(1024) NOT NULL DEFAULT '',
        audio_url             VARCHAR(1024) NOT NULL DEFAULT '',
        bpm                   INT          NULL,
        musical_key           VARCHAR(32)  NOT NULL DEFAULT '',
        genre                 VARCHAR(64)  NOT NULL DEFAULT '',
        lease_tiers           JSON         NOT NULL,
        is_published          TINYINT(1)   NOT NULL DEFAULT 0,
        exclusive_sold_at     DATETIME(3)  NULL,
        exclusive_sold_to     VARCHAR(64)  NULL,
        exclusive_purchase_id VARCHAR(64)  NULL,
        created_at            DATETIME(3)  NOT NULL,
        updated_at            DATETIME(3)  NOT NULL,
        KEY idx_beats_owner (owner_user_id),
        CONSTRAINT chk_beats_sold_unpublished CHECK (exclusive_sold_at IS NULL OR is_published = 0)
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS purchases (
        id               VARCHAR(64)  NOT NULL PRIMARY KEY,
        user_id          VARCHAR(64)  NOT NULL,
        product_id       VARCHAR(64)  NOT NULL,
        store_id         VARCHAR(64)  NOT NULL,
        seller_user_id   VARCHAR(64)  NOT NULL,
        amount_cents     BIGINT       NOT NULL,
        currency         CHAR(3)      NOT NULL,
        status           VARCHAR(16)  NOT NULL,
        payment_method   VARCHAR(32)  NOT NULL,
        transaction_id   VARCHAR(255) NULL,
        product_type     VARCHAR(32)  NOT NULL,
        access_granted   TINYINT(1)   NOT NULL DEFAULT 1,
        download_count   INT          NOT NULL DEFAULT 0,
        last_accessed_at DATETIME(3)  NOT NULL,
        beat_license_id  VARCHAR(64)  NULL,
        created_at       DATETIME(3)  NOT NULL,
        KEY idx_purchases_user (user_id, created_at),
        KEY idx_purchases_store (store_id, created_at)
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS beat_licenses (
        id                    VARCHAR(64)  NOT NULL PRIMARY KEY,
        purchase_id           VARCHAR(64)  NOT NULL,
        beat_id               VARCHAR(64)  NOT NULL,
        user_id               VARCHAR(64)  NOT NULL,
        store_id              VARCHAR(64)  NOT NULL,
        tier_type             VARCHAR(16)  NOT NULL,
        tier_name             VARCHAR(255) NOT NULL,
        price_cents           BIGINT       NOT NULL,
        distribution_limit    BIGINT       NULL,
        streaming_limit       BIGINT       NULL,
        commercial_use        TINYINT(1)   NOT NULL,
        music_video_use       TINYINT(1)   NOT NULL,
        radio_broadcasting    TINYINT(1)   NOT NULL,
        stems_included        TINYINT(1)   NOT NULL,
        credit_required       TINYINT(1)   NOT NULL,
        delivered_files       JSON         NOT NULL,
        buyer_email           VARCHAR(255) NOT NULL,
        buyer_name            VARCHAR(255) NULL,
        beat_title            VARCHAR(255) NOT NULL,
        producer_name         VARCHAR(255) NOT NULL,
        created_at            DATETIME(3)  NOT NULL,
        contract_generated_at DATETIME(3)  NULL,
        exclusive_beat_id     VARCHAR(64)
            GENERATED ALWAYS AS (IF(tier_type = 'exclusive', beat_id, NULL)) STORED,
        UNIQUE KEY uq_beat_licenses_purchase (purchase_id),
        UNIQUE KEY uq_beat_licenses_user_beat_tier (user_id, beat_id, tier_type),
        UNIQUE KEY uq_beat_licenses_exclusive (exclusive_beat_id),
        KEY idx_beat_licenses_user (user_id, created_at),
        KEY idx_beat_licenses_store (store_id, created_at),
        CONSTRAINT fk_beat_licenses_purchase FOREIGN KEY (purchase_id) REFERENCES purchases (id)
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS customers (
        id                VARCHAR(64)  NOT NULL PRIMARY KEY,
        email             VARCHAR(255) NOT NULL,
        store_id          VARCHAR(64)  NOT NULL,
        seller_user_id    VARCHAR(64)  NOT NULL,
        name              VARCHAR(255) NOT NULL,
        type              VARCHAR(16)  NOT NULL,
        status            VARCHAR(16)  NOT NULL,
        total_spent_cents BIGINT       NOT NULL DEFAULT 0,
        last_activity     DATETIME(3)  NOT NULL,
        source            VARCHAR(255) NOT NULL,
        UNIQUE KEY uq_customers_email_store (email, store_id)
    ) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates any missing table.  It returns the number of
// statements applied.
func Migrate(ctx context.Context, db *sql.DB) (int, error) {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return i, fmt.Errorf("migrate statement %d: %w", i+1, err)
		}
	}
	return len(schema), nil
}
