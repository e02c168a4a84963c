// ./internal/state/vault_store.go
package state

import (
	"context"
	"encoding/json"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/lib/pq" // PostgreSQL driver for array support
	"github.com/the-standard/smart-vault/internal/types"
)

// VaultStore persists vault records in the vaults table. It is the commit hook target of the directory.
type VaultStore struct{}

// vaultRow is a VaultRecord in column form.
type vaultRow struct {
	id            uint64
	address       string
	owner         string
	minted        string
	liquidated    bool
	hypervisors   []string
	balances      []byte
	shares        []byte
	version       int16
	vaultType     string
	schemaVersion int64
}

func encodeVaultRecord(record types.VaultRecord) (vaultRow, error) {
	minted := record.Minted
	if minted.IsNil() {
		minted = sdkmath.ZeroInt()
	}
	balances := record.Balances
	if balances == nil {
		balances = map[types.Symbol]sdkmath.Int{}
	}
	balancesJSON, err := json.Marshal(balances)
	if err != nil {
		return vaultRow{}, fmt.Errorf("failed to marshal balances of vault %d: %w", record.ID, err)
	}
	shares := record.Shares
	if shares == nil {
		shares = map[common.Address]sdkmath.Int{}
	}
	sharesJSON, err := json.Marshal(shares)
	if err != nil {
		return vaultRow{}, fmt.Errorf("failed to marshal shares of vault %d: %w", record.ID, err)
	}
	hypervisors := make([]string, 0, len(record.Hypervisors))
	for _, h := range record.Hypervisors {
		hypervisors = append(hypervisors, h.Hex())
	}
	return vaultRow{
		id:            record.ID,
		address:       record.Address.Hex(),
		owner:         record.Owner.Hex(),
		minted:        minted.String(),
		liquidated:    record.Liquidated,
		hypervisors:   hypervisors,
		balances:      balancesJSON,
		shares:        sharesJSON,
		version:       int16(record.Version),
		vaultType:     string(record.VaultType),
		schemaVersion: int64(record.SchemaVersion),
	}, nil
}

func decodeVaultRow(row vaultRow) (types.VaultRecord, error) {
	minted, ok := sdkmath.NewIntFromString(row.minted)
	if !ok {
		return types.VaultRecord{}, fmt.Errorf("vault %d has unparsable minted %q", row.id, row.minted)
	}
	record := types.VaultRecord{
		SchemaVersion: uint32(row.schemaVersion),
		ID:            row.id,
		Address:       common.HexToAddress(row.address),
		Owner:         common.HexToAddress(row.owner),
		Minted:        minted,
		Liquidated:    row.liquidated,
		Version:       uint8(row.version),
		VaultType:     types.Symbol(row.vaultType),
	}
	for _, h := range row.hypervisors {
		if !common.IsHexAddress(h) {
			return types.VaultRecord{}, fmt.Errorf("vault %d has invalid hypervisor %q", row.id, h)
		}
		record.Hypervisors = append(record.Hypervisors, common.HexToAddress(h))
	}
	if len(row.balances) > 0 {
		if err := json.Unmarshal(row.balances, &record.Balances); err != nil {
			return types.VaultRecord{}, fmt.Errorf("failed to unmarshal balances of vault %d: %w", row.id, err)
		}
	}
	if len(row.shares) > 0 {
		if err := json.Unmarshal(row.shares, &record.Shares); err != nil {
			return types.VaultRecord{}, fmt.Errorf("failed to unmarshal shares of vault %d: %w", row.id, err)
		}
	}
	return record, nil
}

// SaveVaultRecord upserts one vault.
func (VaultStore) SaveVaultRecord(ctx context.Context, record types.VaultRecord) error {
	if DB == nil {
		return ErrNotInitialized
	}
	row, err := encodeVaultRecord(record)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO vaults (
			id, address, owner, minted, liquidated, hypervisors, balances, shares,
			version, vault_type, schema_version, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			owner = EXCLUDED.owner,
			minted = EXCLUDED.minted,
			liquidated = EXCLUDED.liquidated,
			hypervisors = EXCLUDED.hypervisors,
			balances = EXCLUDED.balances,
			shares = EXCLUDED.shares,
			version = EXCLUDED.version,
			vault_type = EXCLUDED.vault_type,
			schema_version = EXCLUDED.schema_version,
			updated_at = EXCLUDED.updated_at;
	`
	if _, err := DB.ExecContext(ctx, query,
		row.id, row.address, row.owner, row.minted, row.liquidated, pq.Array(row.hypervisors),
		row.balances, row.shares, row.version, row.vaultType, row.schemaVersion, record.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to save vault %d: %w", record.ID, err)
	}

	storeLogger().Debug().
		Uint64("vault_id", record.ID).
		Str("minted", row.minted).
		Bool("liquidated", record.Liquidated).
		Msg("Vault record saved")
	return nil
}

// LoadVaultRecords returns every stored vault in id order.
func (VaultStore) LoadVaultRecords(ctx context.Context) ([]types.VaultRecord, error) {
	if DB == nil {
		return nil, ErrNotInitialized
	}

	query := `
		SELECT id, address, owner, minted::TEXT, liquidated, hypervisors, balances, shares,
			version, vault_type, schema_version, updated_at
		FROM vaults
		ORDER BY id ASC
	`
	rows, err := DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query vaults: %w", err)
	}
	defer rows.Close()

	var records []types.VaultRecord
	for rows.Next() {
		var row vaultRow
		var record types.VaultRecord
		if err := rows.Scan(
			&row.id, &row.address, &row.owner, &row.minted, &row.liquidated, pq.Array(&row.hypervisors),
			&row.balances, &row.shares, &row.version, &row.vaultType, &row.schemaVersion, &record.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan vault row: %w", err)
		}
		decoded, err := decodeVaultRow(row)
		if err != nil {
			return nil, err
		}
		decoded.UpdatedAt = record.UpdatedAt
		records = append(records, decoded)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vault rows: %w", err)
	}

	storeLogger().Info().Int("vaults", len(records)).Msg("Loaded vault records")
	return records, nil
}
