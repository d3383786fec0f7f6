package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/serenissima/internal/activity"
	"github.com/talgya/serenissima/internal/agents"
	"github.com/talgya/serenissima/internal/economy"
	"github.com/talgya/serenissima/internal/social"
	"github.com/talgya/serenissima/internal/world"
)

// DB is a SQLite-backed Store.
type DB struct {
	sqlReader
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path. ":memory:" gives
// a private in-memory database.
func Open(path string) (*DB, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	if path == ":memory:" {
		dsn = path
	}
	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection: transactions serialize in the pool instead of failing
	// with SQLITE_BUSY, and ":memory:" keeps a single database.
	conn.SetMaxOpenConns(1)

	db := &DB{sqlReader: sqlReader{q: conn}, conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS citizens (
		username TEXT PRIMARY KEY,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		social_class TEXT NOT NULL,
		lat REAL,
		lng REAL,
		ducats INTEGER NOT NULL DEFAULT 0,
		ate_at INTEGER,
		in_venice INTEGER NOT NULL DEFAULT 1,
		is_ai INTEGER NOT NULL DEFAULT 0,
		depart_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS buildings (
		building_id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL,
		sub_category TEXT NOT NULL DEFAULT '',
		owner TEXT NOT NULL DEFAULT '',
		run_by TEXT NOT NULL DEFAULT '',
		occupant TEXT NOT NULL DEFAULT '',
		lat REAL NOT NULL,
		lng REAL NOT NULL,
		is_constructed INTEGER NOT NULL DEFAULT 1,
		construction_minutes_remaining REAL NOT NULL DEFAULT 0,
		checked_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS contracts (
		contract_id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		buyer TEXT NOT NULL DEFAULT '',
		seller TEXT NOT NULL DEFAULT '',
		resource_type TEXT NOT NULL DEFAULT '',
		price_per_resource INTEGER NOT NULL DEFAULT 0,
		target_amount REAL NOT NULL DEFAULT 0,
		buyer_building TEXT NOT NULL DEFAULT '',
		seller_building TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		end_at INTEGER,
		status TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS resources (
		type TEXT NOT NULL,
		asset_type TEXT NOT NULL,
		asset TEXT NOT NULL,
		owner TEXT NOT NULL,
		count REAL NOT NULL CHECK (count > 0),
		deliver_to TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (type, asset_type, asset, owner)
	);

	CREATE TABLE IF NOT EXISTS activities (
		activity_id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		citizen TEXT NOT NULL,
		from_building TEXT NOT NULL DEFAULT '',
		to_building TEXT NOT NULL DEFAULT '',
		contract_id TEXT NOT NULL DEFAULT '',
		resources_json TEXT NOT NULL DEFAULT '[]',
		path_json TEXT NOT NULL DEFAULT '[]',
		transporter TEXT NOT NULL DEFAULT '',
		start_date INTEGER NOT NULL,
		end_date INTEGER NOT NULL,
		status TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		details_json TEXT,
		created_at INTEGER NOT NULL,
		processed_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS relationships (
		citizen1 TEXT NOT NULL,
		citizen2 TEXT NOT NULL,
		trust_score REAL NOT NULL DEFAULT 0,
		strength_score REAL NOT NULL DEFAULT 0,
		last_interaction INTEGER NOT NULL,
		notes_json TEXT NOT NULL DEFAULT '[]',
		PRIMARY KEY (citizen1, citizen2)
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		asset TEXT NOT NULL DEFAULT '',
		seller TEXT NOT NULL,
		buyer TEXT NOT NULL,
		price INTEGER NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		executed_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		citizen TEXT NOT NULL,
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_activities_citizen_status ON activities(citizen, status);
	CREATE INDEX IF NOT EXISTS idx_activities_status_end ON activities(status, end_date);
	CREATE INDEX IF NOT EXISTS idx_activities_contract ON activities(contract_id, status);
	CREATE INDEX IF NOT EXISTS idx_resources_asset ON resources(asset_type, asset);
	CREATE INDEX IF NOT EXISTS idx_buildings_occupant ON buildings(occupant);
	CREATE INDEX IF NOT EXISTS idx_contracts_type_status ON contracts(type, status);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// InTx runs fn in a SQLite transaction.
func (db *DB) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqlTx{sqlReader: sqlReader{q: tx}}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type querier interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

type sqlReader struct {
	q querier
}

// Row shapes. Times are unix nanoseconds so ordering and filtering stay
// numeric.

type citizenRow struct {
	Username    string          `db:"username"`
	FirstName   string          `db:"first_name"`
	LastName    string          `db:"last_name"`
	SocialClass string          `db:"social_class"`
	Lat         sql.NullFloat64 `db:"lat"`
	Lng         sql.NullFloat64 `db:"lng"`
	Ducats      int64           `db:"ducats"`
	AteAt       sql.NullInt64   `db:"ate_at"`
	InVenice    bool            `db:"in_venice"`
	IsAI        bool            `db:"is_ai"`
	DepartAt    sql.NullInt64   `db:"depart_at"`
}

func (r citizenRow) toCitizen() (*agents.Citizen, error) {
	class, err := agents.ParseSocialClass(r.SocialClass)
	if err != nil {
		return nil, fmt.Errorf("citizen %s: %w", r.Username, err)
	}
	c := &agents.Citizen{
		Username:    r.Username,
		FirstName:   r.FirstName,
		LastName:    r.LastName,
		SocialClass: class,
		Ducats:      economy.Ducats(r.Ducats),
		AteAt:       fromNullNanos(r.AteAt),
		InVenice:    r.InVenice,
		IsAI:        r.IsAI,
		DepartAt:    fromNullNanos(r.DepartAt),
	}
	if r.Lat.Valid && r.Lng.Valid {
		c.Position = &world.Position{Lat: r.Lat.Float64, Lng: r.Lng.Float64}
	}
	return c, nil
}

type buildingRow struct {
	BuildingID                   string        `db:"building_id"`
	Type                         string        `db:"type"`
	Name                         string        `db:"name"`
	Category                     string        `db:"category"`
	SubCategory                  string        `db:"sub_category"`
	Owner                        string        `db:"owner"`
	RunBy                        string        `db:"run_by"`
	Occupant                     string        `db:"occupant"`
	Lat                          float64       `db:"lat"`
	Lng                          float64       `db:"lng"`
	IsConstructed                bool          `db:"is_constructed"`
	ConstructionMinutesRemaining float64       `db:"construction_minutes_remaining"`
	CheckedAt                    sql.NullInt64 `db:"checked_at"`
}

func (r buildingRow) toBuilding() *world.Building {
	return &world.Building{
		BuildingID:                   r.BuildingID,
		Type:                         r.Type,
		Name:                         r.Name,
		Category:                     r.Category,
		SubCategory:                  r.SubCategory,
		Owner:                        r.Owner,
		RunBy:                        r.RunBy,
		Occupant:                     r.Occupant,
		Position:                     world.Position{Lat: r.Lat, Lng: r.Lng},
		IsConstructed:                r.IsConstructed,
		ConstructionMinutesRemaining: r.ConstructionMinutesRemaining,
		CheckedAt:                    fromNullNanos(r.CheckedAt),
	}
}

type contractRow struct {
	ContractID       string        `db:"contract_id"`
	Type             string        `db:"type"`
	Buyer            string        `db:"buyer"`
	Seller           string        `db:"seller"`
	ResourceType     string        `db:"resource_type"`
	PricePerResource int64         `db:"price_per_resource"`
	TargetAmount     float64       `db:"target_amount"`
	BuyerBuilding    string        `db:"buyer_building"`
	SellerBuilding   string        `db:"seller_building"`
	CreatedAt        int64         `db:"created_at"`
	EndAt            sql.NullInt64 `db:"end_at"`
	Status           string        `db:"status"`
}

func (r contractRow) toContract() *economy.Contract {
	return &economy.Contract{
		ContractID:       r.ContractID,
		Type:             economy.ContractType(r.Type),
		Buyer:            r.Buyer,
		Seller:           r.Seller,
		ResourceType:     r.ResourceType,
		PricePerResource: economy.Ducats(r.PricePerResource),
		TargetAmount:     r.TargetAmount,
		BuyerBuilding:    r.BuyerBuilding,
		SellerBuilding:   r.SellerBuilding,
		CreatedAt:        fromNanos(r.CreatedAt),
		EndAt:            fromNullNanos(r.EndAt),
		Status:           economy.ContractStatus(r.Status),
	}
}

type activityRow struct {
	ActivityID    string         `db:"activity_id"`
	Type          string         `db:"type"`
	Citizen       string         `db:"citizen"`
	FromBuilding  string         `db:"from_building"`
	ToBuilding    string         `db:"to_building"`
	ContractID    string         `db:"contract_id"`
	ResourcesJSON string         `db:"resources_json"`
	PathJSON      string         `db:"path_json"`
	Transporter   string         `db:"transporter"`
	StartDate     int64          `db:"start_date"`
	EndDate       int64          `db:"end_date"`
	Status        string         `db:"status"`
	Notes         string         `db:"notes"`
	DetailsJSON   sql.NullString `db:"details_json"`
	CreatedAt     int64          `db:"created_at"`
	ProcessedAt   sql.NullInt64  `db:"processed_at"`
}

func (r activityRow) toActivity() (*activity.Activity, error) {
	typ, err := activity.ParseType(r.Type)
	if err != nil {
		return nil, fmt.Errorf("activity %s: %w", r.ActivityID, err)
	}
	a := &activity.Activity{
		ActivityID:   r.ActivityID,
		Type:         typ,
		Citizen:      r.Citizen,
		FromBuilding: r.FromBuilding,
		ToBuilding:   r.ToBuilding,
		ContractID:   r.ContractID,
		Transporter:  r.Transporter,
		StartDate:    fromNanos(r.StartDate),
		EndDate:      fromNanos(r.EndDate),
		Status:       activity.Status(r.Status),
		Notes:        r.Notes,
		CreatedAt:    fromNanos(r.CreatedAt),
		ProcessedAt:  fromNullNanos(r.ProcessedAt),
	}
	if err := json.Unmarshal([]byte(r.ResourcesJSON), &a.Resources); err != nil {
		return nil, fmt.Errorf("activity %s resources: %w", r.ActivityID, err)
	}
	if err := json.Unmarshal([]byte(r.PathJSON), &a.Path); err != nil {
		return nil, fmt.Errorf("activity %s path: %w", r.ActivityID, err)
	}
	if r.DetailsJSON.Valid {
		d, err := activity.DecodeDetails([]byte(r.DetailsJSON.String))
		if err != nil {
			return nil, fmt.Errorf("activity %s: %w", r.ActivityID, err)
		}
		a.Details = d
	}
	return a, nil
}

type relationshipRow struct {
	Citizen1        string  `db:"citizen1"`
	Citizen2        string  `db:"citizen2"`
	TrustScore      float64 `db:"trust_score"`
	StrengthScore   float64 `db:"strength_score"`
	LastInteraction int64   `db:"last_interaction"`
	NotesJSON       string  `db:"notes_json"`
}

type transactionRow struct {
	ID         int64  `db:"id"`
	Type       string `db:"type"`
	Asset      string `db:"asset"`
	Seller     string `db:"seller"`
	Buyer      string `db:"buyer"`
	Price      int64  `db:"price"`
	Notes      string `db:"notes"`
	ExecutedAt int64  `db:"executed_at"`
}

type notificationRow struct {
	ID        int64  `db:"id"`
	Citizen   string `db:"citizen"`
	Type      string `db:"type"`
	Content   string `db:"content"`
	CreatedAt int64  `db:"created_at"`
}

// where accumulates AND-ed predicates.
type where struct {
	clauses []string
	args    []any
}

func (w *where) eq(col, v string) {
	if v != "" {
		w.add(col+" = ?", v)
	}
}

func (w *where) in(col string, vals []string) {
	if len(vals) == 0 {
		return
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(vals)), ",")
	args := make([]any, len(vals))
	for i, v := range vals {
		args[i] = v
	}
	w.add(col+" IN ("+marks+")", args...)
}

func (w *where) add(clause string, args ...any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func (r sqlReader) Citizen(ctx context.Context, username string) (*agents.Citizen, error) {
	var row citizenRow
	if err := sqlx.GetContext(ctx, r.q, &row, "SELECT * FROM citizens WHERE username = ?", username); err != nil {
		return nil, notFound(err, "citizen "+username)
	}
	return row.toCitizen()
}

func (r sqlReader) Citizens(ctx context.Context, f CitizenFilter) ([]*agents.Citizen, error) {
	var w where
	if f.InVenice != nil {
		w.add("in_venice = ?", *f.InVenice)
	}
	w.in("username", f.Usernames)

	var rows []citizenRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, "SELECT * FROM citizens"+w.String()+" ORDER BY username", w.args...); err != nil {
		return nil, fmt.Errorf("query citizens: %w", err)
	}
	out := make([]*agents.Citizen, 0, len(rows))
	for _, row := range rows {
		c, err := row.toCitizen()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (r sqlReader) Building(ctx context.Context, id string) (*world.Building, error) {
	var row buildingRow
	if err := sqlx.GetContext(ctx, r.q, &row, "SELECT * FROM buildings WHERE building_id = ?", id); err != nil {
		return nil, notFound(err, "building "+id)
	}
	return row.toBuilding(), nil
}

func (r sqlReader) Buildings(ctx context.Context, f BuildingFilter) ([]*world.Building, error) {
	var w where
	w.in("building_id", f.IDs)
	w.eq("type", f.Type)
	w.eq("category", f.Category)
	w.eq("sub_category", f.SubCategory)
	w.eq("owner", f.Owner)
	w.eq("run_by", f.RunBy)
	w.eq("occupant", f.Occupant)
	if f.OperatedBy != "" {
		w.add("(run_by = ? OR (run_by = '' AND owner = ?))", f.OperatedBy, f.OperatedBy)
	}
	if f.Constructed != nil {
		w.add("is_constructed = ?", *f.Constructed)
	}

	var rows []buildingRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, "SELECT * FROM buildings"+w.String()+" ORDER BY building_id", w.args...); err != nil {
		return nil, fmt.Errorf("query buildings: %w", err)
	}
	out := make([]*world.Building, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toBuilding())
	}
	return out, nil
}

func (r sqlReader) Contract(ctx context.Context, id string) (*economy.Contract, error) {
	var row contractRow
	if err := sqlx.GetContext(ctx, r.q, &row, "SELECT * FROM contracts WHERE contract_id = ?", id); err != nil {
		return nil, notFound(err, "contract "+id)
	}
	return row.toContract(), nil
}

func (r sqlReader) Contracts(ctx context.Context, f ContractFilter) ([]*economy.Contract, error) {
	var w where
	w.in("contract_id", f.IDs)
	w.eq("type", string(f.Type))
	w.eq("status", string(f.Status))
	w.eq("buyer", f.Buyer)
	w.eq("seller", f.Seller)
	w.eq("resource_type", f.ResourceType)
	w.eq("buyer_building", f.BuyerBuilding)
	w.eq("seller_building", f.SellerBuilding)
	if !f.ActiveAt.IsZero() {
		n := f.ActiveAt.UnixNano()
		w.add("status = ? AND created_at <= ? AND (end_at IS NULL OR end_at > ?)", string(economy.ContractActive), n, n)
	}

	var rows []contractRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, "SELECT * FROM contracts"+w.String()+" ORDER BY created_at, contract_id", w.args...); err != nil {
		return nil, fmt.Errorf("query contracts: %w", err)
	}
	out := make([]*economy.Contract, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toContract())
	}
	return out, nil
}

func (r sqlReader) Resource(ctx context.Context, key economy.ResourceKey) (economy.Resource, error) {
	var res economy.Resource
	err := sqlx.GetContext(ctx, r.q, &res,
		"SELECT * FROM resources WHERE type = ? AND asset_type = ? AND asset = ? AND owner = ?",
		key.Type, string(key.AssetType), key.Asset, key.Owner)
	if err != nil {
		return economy.Resource{}, notFound(err, "resource "+key.String())
	}
	return res, nil
}

func (r sqlReader) Resources(ctx context.Context, f ResourceFilter) ([]economy.Resource, error) {
	var w where
	w.eq("type", f.Type)
	w.eq("asset_type", string(f.AssetType))
	w.eq("asset", f.Asset)
	w.eq("owner", f.Owner)
	w.eq("deliver_to", f.DeliverTo)

	var out []economy.Resource
	err := sqlx.SelectContext(ctx, r.q, &out,
		"SELECT * FROM resources"+w.String()+" ORDER BY type, asset_type, asset, owner", w.args...)
	if err != nil {
		return nil, fmt.Errorf("query resources: %w", err)
	}
	return out, nil
}

func (r sqlReader) Activity(ctx context.Context, id string) (*activity.Activity, error) {
	var row activityRow
	if err := sqlx.GetContext(ctx, r.q, &row, "SELECT * FROM activities WHERE activity_id = ?", id); err != nil {
		return nil, notFound(err, "activity "+id)
	}
	return row.toActivity()
}

func (r sqlReader) Activities(ctx context.Context, f ActivityFilter) ([]*activity.Activity, error) {
	var w where
	w.in("activity_id", f.IDs)
	w.eq("citizen", f.Citizen)
	w.eq("status", string(f.Status))
	w.eq("contract_id", f.ContractID)
	if len(f.Types) > 0 {
		names := make([]string, len(f.Types))
		for i, t := range f.Types {
			names[i] = t.String()
		}
		w.in("type", names)
	}
	if !f.EndedBy.IsZero() {
		w.add("end_date <= ?", f.EndedBy.UnixNano())
	}
	if !f.ActiveAt.IsZero() {
		n := f.ActiveAt.UnixNano()
		w.add("start_date <= ? AND end_date > ?", n, n)
	}
	if !f.ProcessedAfter.IsZero() {
		w.add("processed_at > ?", f.ProcessedAfter.UnixNano())
	}
	query := "SELECT * FROM activities" + w.String() + " ORDER BY end_date, activity_id"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	var rows []activityRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, w.args...); err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	out := make([]*activity.Activity, 0, len(rows))
	for _, row := range rows {
		a, err := row.toActivity()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (r sqlReader) Relationship(ctx context.Context, a, b string) (*social.Relationship, error) {
	c1, c2 := social.Pair(a, b)
	var row relationshipRow
	err := sqlx.GetContext(ctx, r.q, &row,
		"SELECT * FROM relationships WHERE citizen1 = ? AND citizen2 = ?", c1, c2)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("relationship %s/%s: %w", c1, c2, err)
	}
	rel := &social.Relationship{
		Citizen1:        row.Citizen1,
		Citizen2:        row.Citizen2,
		TrustScore:      row.TrustScore,
		StrengthScore:   row.StrengthScore,
		LastInteraction: fromNanos(row.LastInteraction),
	}
	if err := json.Unmarshal([]byte(row.NotesJSON), &rel.Notes); err != nil {
		return nil, fmt.Errorf("relationship %s/%s notes: %w", c1, c2, err)
	}
	return rel, nil
}

func (r sqlReader) Transactions(ctx context.Context, party string) ([]economy.Transaction, error) {
	var w where
	if party != "" {
		w.add("(buyer = ? OR seller = ?)", party, party)
	}
	var rows []transactionRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, "SELECT * FROM transactions"+w.String()+" ORDER BY id", w.args...); err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	out := make([]economy.Transaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, economy.Transaction{
			ID:         row.ID,
			Type:       row.Type,
			Asset:      row.Asset,
			Seller:     row.Seller,
			Buyer:      row.Buyer,
			Price:      economy.Ducats(row.Price),
			Notes:      row.Notes,
			ExecutedAt: fromNanos(row.ExecutedAt),
		})
	}
	return out, nil
}

func (r sqlReader) Notifications(ctx context.Context, citizen string) ([]social.Notification, error) {
	var w where
	w.eq("citizen", citizen)
	var rows []notificationRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, "SELECT * FROM notifications"+w.String()+" ORDER BY id", w.args...); err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	out := make([]social.Notification, 0, len(rows))
	for _, row := range rows {
		out = append(out, social.Notification{
			ID:        row.ID,
			Citizen:   row.Citizen,
			Type:      row.Type,
			Content:   row.Content,
			CreatedAt: fromNanos(row.CreatedAt),
		})
	}
	return out, nil
}

// sqlTx is the write side, bound to one *sqlx.Tx.
type sqlTx struct {
	sqlReader
}

func (tx *sqlTx) UpsertCitizen(ctx context.Context, c *agents.Citizen) error {
	var lat, lng sql.NullFloat64
	if c.Position != nil {
		lat = sql.NullFloat64{Float64: c.Position.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: c.Position.Lng, Valid: true}
	}
	_, err := tx.q.ExecContext(ctx, `INSERT OR REPLACE INTO citizens
		(username, first_name, last_name, social_class, lat, lng, ducats, ate_at, in_venice, is_ai, depart_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Username, c.FirstName, c.LastName, c.SocialClass.String(), lat, lng,
		int64(c.Ducats), toNullNanos(c.AteAt), c.InVenice, c.IsAI, toNullNanos(c.DepartAt),
	)
	if err != nil {
		return fmt.Errorf("upsert citizen %s: %w", c.Username, err)
	}
	return nil
}

func (tx *sqlTx) UpsertBuilding(ctx context.Context, b *world.Building) error {
	_, err := tx.q.ExecContext(ctx, `INSERT OR REPLACE INTO buildings
		(building_id, type, name, category, sub_category, owner, run_by, occupant, lat, lng,
		 is_constructed, construction_minutes_remaining, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.BuildingID, b.Type, b.Name, b.Category, b.SubCategory, b.Owner, b.RunBy, b.Occupant,
		b.Position.Lat, b.Position.Lng, b.IsConstructed, b.ConstructionMinutesRemaining, toNullNanos(b.CheckedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert building %s: %w", b.BuildingID, err)
	}
	return nil
}

func (tx *sqlTx) UpsertContract(ctx context.Context, c *economy.Contract) error {
	_, err := tx.q.ExecContext(ctx, `INSERT OR REPLACE INTO contracts
		(contract_id, type, buyer, seller, resource_type, price_per_resource, target_amount,
		 buyer_building, seller_building, created_at, end_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ContractID, string(c.Type), c.Buyer, c.Seller, c.ResourceType, int64(c.PricePerResource),
		c.TargetAmount, c.BuyerBuilding, c.SellerBuilding, c.CreatedAt.UnixNano(), toNullNanos(c.EndAt), string(c.Status),
	)
	if err != nil {
		return fmt.Errorf("upsert contract %s: %w", c.ContractID, err)
	}
	return nil
}

func (tx *sqlTx) PutResource(ctx context.Context, r economy.Resource) error {
	if r.Count < -economy.CountEpsilon {
		return fmt.Errorf("put %s = %.6f: %w", r.ResourceKey, r.Count, ErrNegativeCount)
	}
	var err error
	if r.IsEmpty() {
		_, err = tx.q.ExecContext(ctx,
			"DELETE FROM resources WHERE type = ? AND asset_type = ? AND asset = ? AND owner = ?",
			r.Type, string(r.AssetType), r.Asset, r.Owner)
	} else {
		_, err = tx.q.ExecContext(ctx, `INSERT OR REPLACE INTO resources
			(type, asset_type, asset, owner, count, deliver_to) VALUES (?, ?, ?, ?, ?, ?)`,
			r.Type, string(r.AssetType), r.Asset, r.Owner, r.Count, r.DeliverTo)
	}
	if err != nil {
		return fmt.Errorf("put resource %s: %w", r.ResourceKey, err)
	}
	return nil
}

func (tx *sqlTx) CreateActivity(ctx context.Context, a *activity.Activity) error {
	var busy int
	err := sqlx.GetContext(ctx, tx.q, &busy,
		`SELECT COUNT(*) FROM activities
		 WHERE citizen = ? AND status = ? AND end_date > ? AND start_date < ?`,
		a.Citizen, string(activity.StatusCreated), a.StartDate.UnixNano(), a.EndDate.UnixNano())
	if err != nil {
		return fmt.Errorf("check busy %s: %w", a.Citizen, err)
	}
	if busy > 0 {
		return fmt.Errorf("create %s for %s: %w", a.Type, a.Citizen, ErrCitizenBusy)
	}
	return tx.writeActivity(ctx, "INSERT", a)
}

func (tx *sqlTx) UpdateActivity(ctx context.Context, a *activity.Activity) error {
	return tx.writeActivity(ctx, "REPLACE", a)
}

func (tx *sqlTx) writeActivity(ctx context.Context, verb string, a *activity.Activity) error {
	resources, err := json.Marshal(nonNil(a.Resources))
	if err != nil {
		return fmt.Errorf("marshal resources: %w", err)
	}
	path, err := json.Marshal(nonNil(a.Path))
	if err != nil {
		return fmt.Errorf("marshal path: %w", err)
	}
	details, err := activity.EncodeDetails(a.Details)
	if err != nil {
		return err
	}
	var detailsCol sql.NullString
	if details != nil {
		detailsCol = sql.NullString{String: string(details), Valid: true}
	}

	_, err = tx.q.ExecContext(ctx, verb+` INTO activities
		(activity_id, type, citizen, from_building, to_building, contract_id, resources_json, path_json,
		 transporter, start_date, end_date, status, notes, details_json, created_at, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ActivityID, a.Type.String(), a.Citizen, a.FromBuilding, a.ToBuilding, a.ContractID,
		string(resources), string(path), a.Transporter, a.StartDate.UnixNano(), a.EndDate.UnixNano(),
		string(a.Status), a.Notes, detailsCol, a.CreatedAt.UnixNano(), toNullNanos(a.ProcessedAt),
	)
	if err != nil {
		return fmt.Errorf("write activity %s: %w", a.ActivityID, err)
	}
	return nil
}

func (tx *sqlTx) SaveRelationship(ctx context.Context, r *social.Relationship) error {
	c1, c2 := social.Pair(r.Citizen1, r.Citizen2)
	notes, err := json.Marshal(nonNil(r.Notes))
	if err != nil {
		return fmt.Errorf("marshal notes: %w", err)
	}
	_, err = tx.q.ExecContext(ctx, `INSERT OR REPLACE INTO relationships
		(citizen1, citizen2, trust_score, strength_score, last_interaction, notes_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c1, c2, r.TrustScore, r.StrengthScore, r.LastInteraction.UnixNano(), string(notes))
	if err != nil {
		return fmt.Errorf("save relationship %s/%s: %w", c1, c2, err)
	}
	return nil
}

func (tx *sqlTx) RecordTransaction(ctx context.Context, t *economy.Transaction) error {
	res, err := tx.q.ExecContext(ctx, `INSERT INTO transactions
		(type, asset, seller, buyer, price, notes, executed_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.Type, t.Asset, t.Seller, t.Buyer, int64(t.Price), t.Notes, t.ExecutedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("record transaction: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		t.ID = id
	}
	return nil
}

func (tx *sqlTx) Notify(ctx context.Context, n *social.Notification) error {
	res, err := tx.q.ExecContext(ctx,
		"INSERT INTO notifications (citizen, type, content, created_at) VALUES (?, ?, ?, ?)",
		n.Citizen, n.Type, n.Content, n.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("notify %s: %w", n.Citizen, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		n.ID = id
	}
	slog.Debug("notification stored", "citizen", n.Citizen, "type", n.Type)
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func fromNullNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func toNullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}
