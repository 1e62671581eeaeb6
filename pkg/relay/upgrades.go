// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"

	"go.mau.fi/util/dbutil"
)

// UpgradeTable holds the watch registry schema revisions. The table
// deliberately has no uniqueness constraint: uniqueness is enforced by the
// existence checks in the processor, which runs one event at a time.
var UpgradeTable dbutil.UpgradeTable

func init() {
	UpgradeTable.Register(-1, 1, 0, "Latest revision", dbutil.TxnModeOn, func(ctx context.Context, db *dbutil.Database) error {
		_, err := db.Exec(ctx, `
			CREATE TABLE watches (
				user_id    TEXT NOT NULL,
				channel_id TEXT NOT NULL,
				post_id    TEXT NOT NULL,
				type       TEXT NOT NULL
			)
		`)
		return err
	})
}
