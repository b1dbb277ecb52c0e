package store

// schemaDDL creates every table of §3 if absent. Amounts are stored as
// NUMERIC rather than BIGINT per §6 ("integer amounts are arbitrary
// precision; billions x 1e9 gwei exceed 64-bit"); the Go side always moves
// them through math/big before arithmetic (package gwei).
const schemaDDL = `
CREATE TABLE IF NOT EXISTS epochs (
	epoch                       BIGINT PRIMARY KEY,
	committees_fetched          BOOLEAN NOT NULL DEFAULT FALSE,
	sync_committees_fetched     BOOLEAN NOT NULL DEFAULT FALSE,
	validators_info_fetched     BOOLEAN NOT NULL DEFAULT FALSE,
	validators_balances_fetched BOOLEAN NOT NULL DEFAULT FALSE,
	rewards_fetched             BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS slots (
	slot                        BIGINT PRIMARY KEY,
	epoch                       BIGINT NOT NULL REFERENCES epochs(epoch),
	attestations_fetched        BOOLEAN NOT NULL DEFAULT FALSE,
	consensus_rewards_fetched   BOOLEAN NOT NULL DEFAULT FALSE,
	sync_rewards_fetched        BOOLEAN NOT NULL DEFAULT FALSE,
	committees_count_in_slot    INTEGER[] NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_slots_epoch ON slots(epoch);

CREATE TABLE IF NOT EXISTS committees (
	slot                  BIGINT NOT NULL,
	index                 BIGINT NOT NULL,
	aggregation_bit_index INTEGER NOT NULL,
	validator_index       BIGINT NOT NULL,
	attestation_delay     BIGINT,
	PRIMARY KEY (slot, index, aggregation_bit_index)
);
CREATE INDEX IF NOT EXISTS idx_committees_slot ON committees(slot);
CREATE INDEX IF NOT EXISTS idx_committees_validator ON committees(validator_index);

CREATE TABLE IF NOT EXISTS sync_committees (
	from_epoch BIGINT NOT NULL,
	to_epoch   BIGINT NOT NULL,
	validators BIGINT[] NOT NULL,
	PRIMARY KEY (from_epoch, to_epoch)
);

CREATE TABLE IF NOT EXISTS validators (
	index                  BIGINT PRIMARY KEY,
	status                 TEXT,
	balance                NUMERIC,
	effective_balance      NUMERIC,
	withdrawal_credentials TEXT
);

CREATE TABLE IF NOT EXISTS hourly_validator_stats (
	validator_index     BIGINT NOT NULL,
	date                DATE NOT NULL,
	hour                SMALLINT NOT NULL,
	head                NUMERIC NOT NULL DEFAULT 0,
	target              NUMERIC NOT NULL DEFAULT 0,
	source              NUMERIC NOT NULL DEFAULT 0,
	inactivity          NUMERIC NOT NULL DEFAULT 0,
	missed_head         NUMERIC NOT NULL DEFAULT 0,
	missed_target       NUMERIC NOT NULL DEFAULT 0,
	missed_source       NUMERIC NOT NULL DEFAULT 0,
	missed_inactivity   NUMERIC NOT NULL DEFAULT 0,
	attestations_missed INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (validator_index, date, hour)
);

CREATE TABLE IF NOT EXISTS hourly_block_and_sync_rewards (
	validator_index BIGINT NOT NULL,
	date            DATE NOT NULL,
	hour            SMALLINT NOT NULL,
	block_reward    NUMERIC NOT NULL DEFAULT 0,
	sync_reward     NUMERIC NOT NULL DEFAULT 0,
	PRIMARY KEY (validator_index, date, hour)
);

CREATE TABLE IF NOT EXISTS daily_validator_stats (
	validator_index     BIGINT NOT NULL,
	date                DATE NOT NULL,
	head                NUMERIC NOT NULL DEFAULT 0,
	target              NUMERIC NOT NULL DEFAULT 0,
	source              NUMERIC NOT NULL DEFAULT 0,
	inactivity          NUMERIC NOT NULL DEFAULT 0,
	missed_head         NUMERIC NOT NULL DEFAULT 0,
	missed_target       NUMERIC NOT NULL DEFAULT 0,
	missed_source       NUMERIC NOT NULL DEFAULT 0,
	missed_inactivity   NUMERIC NOT NULL DEFAULT 0,
	attestations_missed INTEGER NOT NULL DEFAULT 0,
	block_reward        NUMERIC NOT NULL DEFAULT 0,
	sync_reward         NUMERIC NOT NULL DEFAULT 0,
	PRIMARY KEY (validator_index, date)
);

CREATE TABLE IF NOT EXISTS last_summary_update (
	id                     BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (id),
	hourly_validator_stats TIMESTAMPTZ NOT NULL DEFAULT 'epoch',
	daily_validator_stats  TIMESTAMPTZ NOT NULL DEFAULT 'epoch'
);
INSERT INTO last_summary_update (id) VALUES (TRUE) ON CONFLICT DO NOTHING;

-- Staging table for the attestation-reward MERGE of §4.4. It is an ordinary
-- table shared by all sessions, not a temporary one; it is truncated and
-- repopulated inside the same transaction as the merge.
CREATE TABLE IF NOT EXISTS epoch_rewards_temp (
	validator_index     BIGINT NOT NULL,
	date                DATE NOT NULL,
	hour                SMALLINT NOT NULL,
	head                NUMERIC NOT NULL DEFAULT 0,
	target              NUMERIC NOT NULL DEFAULT 0,
	source              NUMERIC NOT NULL DEFAULT 0,
	inactivity          NUMERIC NOT NULL DEFAULT 0,
	missed_head         NUMERIC NOT NULL DEFAULT 0,
	missed_target       NUMERIC NOT NULL DEFAULT 0,
	missed_source       NUMERIC NOT NULL DEFAULT 0,
	missed_inactivity   NUMERIC NOT NULL DEFAULT 0
);
`
