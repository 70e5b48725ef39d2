package core

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/tabled/internal/cache"
	"github.com/JonMunkholm/tabled/internal/core/coltype"
	"github.com/JonMunkholm/tabled/internal/logging"
	"github.com/JonMunkholm/tabled/internal/metrics"
	"github.com/JonMunkholm/tabled/internal/model"
	"github.com/JonMunkholm/tabled/internal/store"
)

// Config holds the tunables of the core services.
type Config struct {
	ImportMaxRows   int
	ImportErrorCap  int
	ImportTimeout   time.Duration
	SummaryPageSize int
	AnalyticsTTL    time.Duration
	CatalogTTL      time.Duration
}

// DefaultConfig returns the defaults used when a field is zero.
func DefaultConfig() Config {
	return Config{
		ImportMaxRows:   10000,
		ImportErrorCap:  100,
		ImportTimeout:   10 * time.Minute,
		SummaryPageSize: 500,
		AnalyticsTTL:    60 * time.Second,
		CatalogTTL:      300 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ImportMaxRows <= 0 {
		c.ImportMaxRows = d.ImportMaxRows
	}
	if c.ImportErrorCap <= 0 {
		c.ImportErrorCap = d.ImportErrorCap
	}
	if c.ImportTimeout <= 0 {
		c.ImportTimeout = d.ImportTimeout
	}
	if c.SummaryPageSize <= 0 {
		c.SummaryPageSize = d.SummaryPageSize
	}
	if c.AnalyticsTTL <= 0 {
		c.AnalyticsTTL = d.AnalyticsTTL
	}
	if c.CatalogTTL <= 0 {
		c.CatalogTTL = d.CatalogTTL
	}
	return c
}

// Options carries the collaborators of a Service. Nil fields get working
// defaults: built-in types, a process-local locker, a default import limiter
// and no cache.
type Options struct {
	Types   *coltype.Registry
	Cache   cache.Cache
	Locker  cache.Locker
	Limiter *ImportLimiter
	Metrics *metrics.Collector
	Now     func() time.Time
}

// Service is the entry point for schema, import, inventory and catalog
// operations.
type Service struct {
	store     store.Store
	types     *coltype.Registry
	validator *RowValidator
	ledger    *Ledger
	cache     cache.Cache
	locker    cache.Locker
	limiter   *ImportLimiter
	metrics   *metrics.Collector
	cfg       Config
	now       func() time.Time
}

// NewService creates a Service on top of st.
func NewService(st store.Store, cfg Config, opts Options) *Service {
	if opts.Types == nil {
		opts.Types = coltype.NewRegistry()
	}
	if opts.Locker == nil {
		opts.Locker = cache.NewLocalLocker()
	}
	if opts.Limiter == nil {
		opts.Limiter = NewImportLimiter(DefaultMaxConcurrentImports, DefaultMaxWaitTime, opts.Metrics)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Cache != nil && opts.Metrics != nil {
		opts.Cache = cache.Instrument(opts.Cache, opts.Metrics)
	}

	s := &Service{
		store:     st,
		types:     opts.Types,
		validator: NewRowValidator(opts.Types),
		cache:     opts.Cache,
		locker:    opts.Locker,
		limiter:   opts.Limiter,
		metrics:   opts.Metrics,
		cfg:       cfg.withDefaults(),
		now:       func() time.Time { return opts.Now().UTC() },
	}
	s.ledger = NewLedger(st, opts.Cache, opts.Metrics, s.cfg.AnalyticsTTL, s.now)
	return s
}

// Ledger returns the inventory ledger.
func (s *Service) Ledger() *Ledger { return s.ledger }

// Limiter returns the import limiter.
func (s *Service) Limiter() *ImportLimiter { return s.limiter }

// Types returns the column type registry.
func (s *Service) Types() *coltype.Registry { return s.types }

// Validator returns the row validator.
func (s *Service) Validator() *RowValidator { return s.validator }

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error { return s.store.Ping(ctx) }

// ============================================================================
// Loading helpers
// ============================================================================

// loadOwnedTable loads a table and its columns and checks that user owns it.
func loadOwnedTable(ctx context.Context, st store.TableStore, user model.UserContext, tableID string) (*model.Table, []model.Column, error) {
	t, err := st.GetTable(ctx, tableID)
	if err != nil {
		return nil, nil, storeError(err, "table")
	}
	if !user.Owns(*t) {
		return nil, nil, ForbiddenError("access denied")
	}
	cols, err := st.ListColumns(ctx, tableID)
	if err != nil {
		return nil, nil, InternalError("failed to load columns", err)
	}
	return t, cols, nil
}

func requireUser(user model.UserContext) error {
	if user.UserID == "" {
		return ForbiddenError("authentication required")
	}
	return nil
}

// ============================================================================
// Tables
// ============================================================================

// ColumnInput describes a column to create.
type ColumnInput struct {
	Name            string   `json:"name"`
	Type            string   `json:"type"`
	IsRequired      bool     `json:"isRequired"`
	AllowDuplicates *bool    `json:"allowDuplicates,omitempty"`
	DefaultValue    *string  `json:"defaultValue,omitempty"`
	Position        int      `json:"position,omitempty"`
	Options         []string `json:"options,omitempty"`
}

// TableInput describes a table to create.
type TableInput struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	TableType   model.TableType  `json:"tableType"`
	Visibility  model.Visibility `json:"visibility"`
	Columns     []ColumnInput    `json:"columns"`
}

// TableDetail is a table with its columns and row count.
type TableDetail struct {
	model.Table
	Columns  []model.Column `json:"columns"`
	RowCount int64          `json:"rowCount"`
}

// inventoryColumns lists the columns a sale or rent table must carry.
func inventoryColumns(tt model.TableType) []ColumnInput {
	yes, no, zero := "true", "false", "0"
	switch tt {
	case model.TableTypeSale:
		return []ColumnInput{
			{Name: "price", Type: coltype.Currency, IsRequired: true},
			{Name: "qty", Type: coltype.Integer, IsRequired: true, DefaultValue: &zero},
		}
	case model.TableTypeRent:
		return []ColumnInput{
			{Name: "available", Type: coltype.Boolean, DefaultValue: &yes},
			{Name: "used", Type: coltype.Boolean, DefaultValue: &no},
		}
	}
	return nil
}

func isInventoryColumn(tt model.TableType, name string) bool {
	return slices.ContainsFunc(inventoryColumns(tt), func(c ColumnInput) bool {
		return strings.EqualFold(c.Name, name)
	})
}

// CreateTable creates a table owned by user. Sale and rent tables get their
// inventory columns added when the input does not declare them.
func (s *Service) CreateTable(ctx context.Context, user model.UserContext, in TableInput) (*TableDetail, error) {
	if err := requireUser(user); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, ValidationError("table name is required")
	}
	if in.TableType == "" {
		in.TableType = model.TableTypeData
	}
	if !in.TableType.Valid() {
		return nil, ValidationError("invalid table type %q", in.TableType)
	}
	if in.Visibility == "" {
		in.Visibility = model.VisibilityPrivate
	}
	if !in.Visibility.Valid() {
		return nil, ValidationError("invalid visibility %q", in.Visibility)
	}

	columns := slices.Clone(in.Columns)
	for _, ic := range inventoryColumns(in.TableType) {
		if !slices.ContainsFunc(columns, func(c ColumnInput) bool { return strings.EqualFold(c.Name, ic.Name) }) {
			columns = append(columns, ic)
		}
	}

	now := s.now()
	table := model.Table{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		OwnerID:     user.UserID,
		TableType:   in.TableType,
		Visibility:  in.Visibility,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var created []model.Column
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.CreateTable(ctx, &table); err != nil {
			return InternalError("failed to create table", err)
		}
		for i, in := range columns {
			if in.Position == 0 {
				in.Position = i + 1
			}
			col, err := s.newColumn(table.ID, in, created)
			if err != nil {
				return err
			}
			if err := tx.CreateColumn(ctx, &col); err != nil {
				return storeError(err, "column "+col.Name)
			}
			created = append(created, col)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateCatalog(ctx)
	logging.FromContext(ctx).Info("table created",
		"table_id", table.ID,
		"table_type", table.TableType,
		"columns", len(created),
	)
	return &TableDetail{Table: table, Columns: created}, nil
}

// newColumn validates in against the existing columns and builds the model.
func (s *Service) newColumn(tableID string, in ColumnInput, existing []model.Column) (model.Column, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return model.Column{}, ValidationError("column name is required")
	}
	if _, dup := model.FindColumn(existing, name); dup {
		return model.Column{}, ConflictError("column already exists: %s", name)
	}
	typ := strings.TrimSpace(in.Type)
	if typ == "" {
		typ = coltype.Text
	}
	allowDup := true
	if in.AllowDuplicates != nil {
		allowDup = *in.AllowDuplicates
	}
	col := model.Column{
		ID:              uuid.NewString(),
		TableID:         tableID,
		Name:            name,
		Type:            typ,
		IsRequired:      in.IsRequired,
		AllowDuplicates: allowDup,
		DefaultValue:    in.DefaultValue,
		Position:        in.Position,
		Options:         in.Options,
	}
	if col.DefaultValue != nil && strings.TrimSpace(*col.DefaultValue) != "" {
		if _, err := s.validator.coerce(col, *col.DefaultValue); err != nil {
			return model.Column{}, ValidationError("%s: invalid default value: %v", name, err)
		}
	}
	return col, nil
}

// GetTable returns a table owned by user with its columns and row count.
func (s *Service) GetTable(ctx context.Context, user model.UserContext, tableID string) (*TableDetail, error) {
	t, cols, err := loadOwnedTable(ctx, s.store, user, tableID)
	if err != nil {
		return nil, err
	}
	n, err := s.store.CountRows(ctx, tableID)
	if err != nil {
		return nil, InternalError("failed to count rows", err)
	}
	return &TableDetail{Table: *t, Columns: cols, RowCount: n}, nil
}

// ListTables returns the tables owned by user.
func (s *Service) ListTables(ctx context.Context, user model.UserContext) ([]model.Table, error) {
	if err := requireUser(user); err != nil {
		return nil, err
	}
	tables, err := s.store.ListTables(ctx, store.TableFilter{OwnerID: user.UserID})
	if err != nil {
		return nil, InternalError("failed to list tables", err)
	}
	return tables, nil
}

// ============================================================================
// Columns
// ============================================================================

// AddColumn adds a column to a table. Names are unique per table without
// regard to case.
func (s *Service) AddColumn(ctx context.Context, user model.UserContext, tableID string, in ColumnInput) (*model.Column, error) {
	var col model.Column
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		_, cols, err := loadOwnedTable(ctx, tx, user, tableID)
		if err != nil {
			return err
		}
		if in.Position == 0 {
			for _, c := range cols {
				in.Position = max(in.Position, c.Position)
			}
			in.Position++
		}
		col, err = s.newColumn(tableID, in, cols)
		if err != nil {
			return err
		}
		if err := tx.CreateColumn(ctx, &col); err != nil {
			return storeError(err, "column "+col.Name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &col, nil
}

// ColumnPatch changes a column. Nil fields are left alone. Force applies a
// type change even when some stored values cannot be converted.
type ColumnPatch struct {
	Name            *string   `json:"name,omitempty"`
	Type            *string   `json:"type,omitempty"`
	IsRequired      *bool     `json:"isRequired,omitempty"`
	AllowDuplicates *bool     `json:"allowDuplicates,omitempty"`
	DefaultValue    *string   `json:"defaultValue,omitempty"`
	Options         *[]string `json:"options,omitempty"`
	Force           bool      `json:"force,omitempty"`
}

// UpdateColumn applies patch to the named column. A rename moves the stored
// values to the new key in the same transaction; a type change converts the
// stored values that the new type accepts and is refused when any value
// fails unless Force is set.
func (s *Service) UpdateColumn(ctx context.Context, user model.UserContext, tableID, name string, patch ColumnPatch) (*model.Column, error) {
	var updated model.Column
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		t, cols, err := loadOwnedTable(ctx, tx, user, tableID)
		if err != nil {
			return err
		}
		col, ok := model.FindColumn(cols, name)
		if !ok {
			return NotFoundError("column %s not found", name)
		}
		oldName := col.Name

		if patch.Name != nil {
			newName := strings.TrimSpace(*patch.Name)
			if newName == "" {
				return ValidationError("column name is required")
			}
			if !strings.EqualFold(newName, oldName) {
				if isInventoryColumn(t.TableType, oldName) {
					return ValidationError("column %s cannot be renamed on a %s table", oldName, t.TableType)
				}
				if _, dup := model.FindColumn(cols, newName); dup {
					return ConflictError("column already exists: %s", newName)
				}
			}
			col.Name = newName
		}

		typeChanged := false
		if patch.Type != nil && *patch.Type != col.Type {
			if isInventoryColumn(t.TableType, oldName) {
				return ValidationError("column %s type cannot change on a %s table", oldName, t.TableType)
			}
			col.Type = *patch.Type
			typeChanged = true
		}
		if patch.IsRequired != nil {
			col.IsRequired = *patch.IsRequired
		}
		if patch.AllowDuplicates != nil {
			col.AllowDuplicates = *patch.AllowDuplicates
		}
		if patch.DefaultValue != nil {
			col.DefaultValue = patch.DefaultValue
			if strings.TrimSpace(*patch.DefaultValue) == "" {
				col.DefaultValue = nil
			}
		}
		if patch.Options != nil {
			col.Options = *patch.Options
		}
		if col.DefaultValue != nil {
			if _, err := s.validator.coerce(col, *col.DefaultValue); err != nil {
				return ValidationError("%s: invalid default value: %v", col.Name, err)
			}
		}

		if typeChanged {
			preview, err := s.previewTypeChange(ctx, tx, tableID, oldName, col)
			if err != nil {
				return err
			}
			if preview.Failing > 0 && !patch.Force {
				return &Error{
					Kind:    KindValidation,
					Message: fmt.Sprintf("%d value(s) in %s cannot be converted to %s", preview.Failing, oldName, col.Type),
					Details: preview.sampleStrings(),
				}
			}
		}

		if err := tx.UpdateColumn(ctx, &col); err != nil {
			return storeError(err, "column "+col.Name)
		}
		if col.Name != oldName {
			if err := tx.RenameDataKey(ctx, tableID, oldName, col.Name); err != nil {
				return InternalError("failed to migrate row data", err)
			}
		}
		if typeChanged {
			if err := s.convertColumn(ctx, tx, tableID, col); err != nil {
				return err
			}
		}
		updated = col
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidateCatalog(ctx)
	return &updated, nil
}

// convertColumn rewrites stored values of col with their coerced form. Values
// the type rejects stay as they are.
func (s *Service) convertColumn(ctx context.Context, tx store.Store, tableID string, col model.Column) error {
	return s.eachRowPage(ctx, tx, tableID, func(rows []model.Row) error {
		for _, r := range rows {
			raw, ok := r.Data[col.Name]
			if !ok || coltype.IsEmpty(raw) {
				continue
			}
			coerced, err := s.validator.coerce(col, raw)
			if err != nil {
				continue
			}
			next := coltype.Storable(coerced)
			if store.ValueKey(next) == store.ValueKey(raw) {
				continue
			}
			data := store.CloneData(r.Data)
			data[col.Name] = next
			if err := tx.UpdateRowData(ctx, tableID, r.ID, data); err != nil {
				return InternalError("failed to convert row", err)
			}
		}
		return nil
	})
}

// DeleteColumn removes a column and its stored values.
func (s *Service) DeleteColumn(ctx context.Context, user model.UserContext, tableID, name string) error {
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		t, cols, err := loadOwnedTable(ctx, tx, user, tableID)
		if err != nil {
			return err
		}
		col, ok := model.FindColumn(cols, name)
		if !ok {
			return NotFoundError("column %s not found", name)
		}
		if isInventoryColumn(t.TableType, col.Name) {
			return ValidationError("column %s is required on a %s table", col.Name, t.TableType)
		}
		if err := tx.DeleteColumn(ctx, tableID, col.ID); err != nil {
			return storeError(err, "column "+col.Name)
		}
		if err := tx.DropDataKey(ctx, tableID, col.Name); err != nil {
			return InternalError("failed to drop column data", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidateCatalog(ctx)
	return nil
}

// ============================================================================
// Rows
// ============================================================================

// CreateRow validates raw strictly and stores it. On a sale table the new
// stock is recorded in the ledger.
func (s *Service) CreateRow(ctx context.Context, user model.UserContext, tableID string, raw RawRow) (*model.Row, error) {
	var row model.Row
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		t, cols, err := loadOwnedTable(ctx, tx, user, tableID)
		if err != nil {
			return err
		}
		validated, issues := s.validator.Validate(0, raw, cols, ModeStrict)
		if len(issues) > 0 {
			return ValidationErrors(IssueStrings(issues))
		}

		dups := NewDuplicateChecker(tx, tableID, true)
		for _, col := range cols {
			if col.AllowDuplicates {
				continue
			}
			v, ok := validated.Get(col.Name)
			if !ok {
				continue
			}
			src, err := dups.Check(ctx, col.Name, v)
			if err != nil {
				return InternalError("failed to check duplicates", err)
			}
			if src != NoDuplicate {
				return ConflictError("duplicate value %v in column %s", coltype.Storable(v), col.Name)
			}
		}

		now := s.now()
		row = model.Row{
			ID:        uuid.NewString(),
			TableID:   tableID,
			Data:      validated.Data(),
			CreatedBy: user.UserID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.InsertRow(ctx, &row); err != nil {
			return InternalError("failed to insert row", err)
		}
		if t.TableType == model.TableTypeSale {
			s.ledger.Record(ctx, tx, stockAdded(t, row, user.UserID))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidateCatalog(ctx)
	return &row, nil
}

// RowPage is one page of rows with the table total.
type RowPage struct {
	Rows  []model.Row `json:"rows"`
	Total int64       `json:"total"`
}

// ListRows returns rows of a table owned by user in insertion order.
func (s *Service) ListRows(ctx context.Context, user model.UserContext, tableID string, page store.Page) (*RowPage, error) {
	if _, _, err := loadOwnedTable(ctx, s.store, user, tableID); err != nil {
		return nil, err
	}
	rows, err := s.store.ListRows(ctx, tableID, page)
	if err != nil {
		return nil, InternalError("failed to list rows", err)
	}
	total, err := s.store.CountRows(ctx, tableID)
	if err != nil {
		return nil, InternalError("failed to count rows", err)
	}
	if rows == nil {
		rows = []model.Row{}
	}
	return &RowPage{Rows: rows, Total: total}, nil
}

// eachRowPage calls fn with successive pages of the table's rows.
func (s *Service) eachRowPage(ctx context.Context, st store.RowStore, tableID string, fn func([]model.Row) error) error {
	size := s.cfg.SummaryPageSize
	for offset := 0; ; offset += size {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows, err := st.ListRows(ctx, tableID, store.Page{Limit: size, Offset: offset})
		if err != nil {
			return InternalError("failed to read rows", err)
		}
		if len(rows) > 0 {
			if err := fn(rows); err != nil {
				return err
			}
		}
		if len(rows) < size {
			return nil
		}
	}
}
