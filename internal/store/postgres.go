package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/observatory-sec/observatory/internal/models"
)

// PostgresStore persists everything in postgres via a pgx pool.
type PostgresStore struct {
	connectionString string
	pool             *pgxpool.Pool
}

// NewPostgresStore creates a disconnected postgres store.
func NewPostgresStore(connectionString string) *PostgresStore {
	return &PostgresStore{
		connectionString: connectionString,
		pool:             nil,
	}
}

func (p *PostgresStore) Connect(ctx context.Context) error {
	pool, err := pgxpool.New(ctx, p.connectionString)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	p.pool = pool

	if err := p.initSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialise schema: %w", err)
	}
	return nil
}

func (p *PostgresStore) initSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	default_branch TEXT NOT NULL DEFAULT '',
	branches TEXT[] NOT NULL DEFAULT '{}',
	group_id TEXT NOT NULL DEFAULT '',
	is_group BOOLEAN NOT NULL DEFAULT FALSE,
	assessments_need_approval BOOLEAN NOT NULL DEFAULT FALSE,
	security_gate_active BOOLEAN NOT NULL DEFAULT FALSE,
	threshold_critical INTEGER,
	threshold_high INTEGER,
	threshold_medium INTEGER,
	threshold_low INTEGER,
	threshold_none INTEGER,
	threshold_unknown INTEGER
);

CREATE TABLE IF NOT EXISTS observations (
	id TEXT PRIMARY KEY,
	product_id TEXT NOT NULL,
	branch TEXT NOT NULL DEFAULT '',
	service TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	recommendation TEXT NOT NULL DEFAULT '',
	vulnerability_id TEXT NOT NULL DEFAULT '',
	cwe INTEGER,
	component_name TEXT NOT NULL DEFAULT '',
	component_version TEXT NOT NULL DEFAULT '',
	docker_image_name TEXT NOT NULL DEFAULT '',
	endpoint_url TEXT NOT NULL DEFAULT '',
	service_name TEXT NOT NULL DEFAULT '',
	source_file TEXT NOT NULL DEFAULT '',
	source_line_start INTEGER,
	source_line_end INTEGER,
	cvss3_score DOUBLE PRECISION,
	cvss3_vector TEXT NOT NULL DEFAULT '',
	parser_severity TEXT NOT NULL DEFAULT '',
	rule_severity TEXT NOT NULL DEFAULT '',
	assessment_severity TEXT NOT NULL DEFAULT '',
	parser_status TEXT NOT NULL DEFAULT '',
	rule_status TEXT NOT NULL DEFAULT '',
	assessment_status TEXT NOT NULL DEFAULT '',
	parser_vex_justification TEXT NOT NULL DEFAULT '',
	rule_vex_justification TEXT NOT NULL DEFAULT '',
	assessment_vex_justification TEXT NOT NULL DEFAULT '',
	current_severity TEXT NOT NULL,
	current_status TEXT NOT NULL,
	current_vex_justification TEXT NOT NULL DEFAULT '',
	risk_acceptance_expiry TIMESTAMPTZ,
	fingerprint TEXT NOT NULL,
	scanner TEXT NOT NULL DEFAULT '',
	rule_name TEXT NOT NULL DEFAULT '',
	manually_created BOOLEAN NOT NULL DEFAULT FALSE,
	upload_filename TEXT NOT NULL DEFAULT '',
	api_configuration TEXT NOT NULL DEFAULT '',
	first_seen TIMESTAMPTZ NOT NULL,
	import_last_seen TIMESTAMPTZ NOT NULL,
	last_modified TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_observations_scope
	ON observations (product_id, branch, service, fingerprint);
CREATE INDEX IF NOT EXISTS idx_observations_status
	ON observations (product_id, branch, current_status);

CREATE TABLE IF NOT EXISTS observation_logs (
	id TEXT PRIMARY KEY,
	observation_id TEXT NOT NULL,
	severity TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT '',
	vex_justification TEXT NOT NULL DEFAULT '',
	previous_severity TEXT NOT NULL DEFAULT '',
	previous_status TEXT NOT NULL DEFAULT '',
	previous_vex_justification TEXT NOT NULL DEFAULT '',
	risk_acceptance_expiry TIMESTAMPTZ,
	previous_risk_acceptance_expiry TIMESTAMPTZ,
	risk_acceptance_expiry_changed BOOLEAN NOT NULL DEFAULT FALSE,
	comment TEXT NOT NULL DEFAULT '',
	username TEXT NOT NULL DEFAULT '',
	approval_status TEXT NOT NULL DEFAULT '',
	approval_user TEXT NOT NULL DEFAULT '',
	approval_remark TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_observation_logs_observation
	ON observation_logs (observation_id, created_at);

CREATE TABLE IF NOT EXISTS duplicate_links (
	observation_a TEXT NOT NULL,
	observation_b TEXT NOT NULL,
	PRIMARY KEY (observation_a, observation_b)
);
`

func (p *PostgresStore) SaveProduct(ctx context.Context, product *models.Product) error {
	if p.pool == nil {
		return ErrNotConnected
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO products (
			id, name, default_branch, branches, group_id, is_group,
			assessments_need_approval, security_gate_active,
			threshold_critical, threshold_high, threshold_medium,
			threshold_low, threshold_none, threshold_unknown
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			default_branch = EXCLUDED.default_branch,
			branches = EXCLUDED.branches,
			group_id = EXCLUDED.group_id,
			is_group = EXCLUDED.is_group,
			assessments_need_approval = EXCLUDED.assessments_need_approval,
			security_gate_active = EXCLUDED.security_gate_active,
			threshold_critical = EXCLUDED.threshold_critical,
			threshold_high = EXCLUDED.threshold_high,
			threshold_medium = EXCLUDED.threshold_medium,
			threshold_low = EXCLUDED.threshold_low,
			threshold_none = EXCLUDED.threshold_none,
			threshold_unknown = EXCLUDED.threshold_unknown`,
		product.ID, product.Name, product.DefaultBranch, product.Branches, product.GroupID, product.IsGroup,
		product.AssessmentsNeedApproval, product.SecurityGateActive,
		product.Thresholds.Critical, product.Thresholds.High, product.Thresholds.Medium,
		product.Thresholds.Low, product.Thresholds.None, product.Thresholds.Unknown,
	)
	if err != nil {
		return fmt.Errorf("failed to save product: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	if p.pool == nil {
		return nil, ErrNotConnected
	}

	row := p.pool.QueryRow(ctx, `
		SELECT id, name, default_branch, branches, group_id, is_group,
			assessments_need_approval, security_gate_active,
			threshold_critical, threshold_high, threshold_medium,
			threshold_low, threshold_none, threshold_unknown
		FROM products WHERE id = $1`, id)

	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return product, nil
}

func (p *PostgresStore) ListGroupMembers(ctx context.Context, groupID string) ([]*models.Product, error) {
	if p.pool == nil {
		return nil, ErrNotConnected
	}

	rows, err := p.pool.Query(ctx, `
		SELECT id, name, default_branch, branches, group_id, is_group,
			assessments_need_approval, security_gate_active,
			threshold_critical, threshold_high, threshold_medium,
			threshold_low, threshold_none, threshold_unknown
		FROM products WHERE group_id = $1 ORDER BY id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group members: %w", err)
	}
	defer rows.Close()

	var members []*models.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		members = append(members, product)
	}
	return members, rows.Err()
}

func scanProduct(row pgx.Row) (*models.Product, error) {
	var product models.Product
	err := row.Scan(
		&product.ID, &product.Name, &product.DefaultBranch, &product.Branches, &product.GroupID, &product.IsGroup,
		&product.AssessmentsNeedApproval, &product.SecurityGateActive,
		&product.Thresholds.Critical, &product.Thresholds.High, &product.Thresholds.Medium,
		&product.Thresholds.Low, &product.Thresholds.None, &product.Thresholds.Unknown,
	)
	if err != nil {
		return nil, err
	}
	return &product, nil
}

const observationColumns = `
	id, product_id, branch, service, title, description, recommendation,
	vulnerability_id, cwe, component_name, component_version,
	docker_image_name, endpoint_url, service_name, source_file,
	source_line_start, source_line_end, cvss3_score, cvss3_vector,
	parser_severity, rule_severity, assessment_severity,
	parser_status, rule_status, assessment_status,
	parser_vex_justification, rule_vex_justification, assessment_vex_justification,
	current_severity, current_status, current_vex_justification,
	risk_acceptance_expiry, fingerprint, scanner, rule_name,
	manually_created, upload_filename, api_configuration,
	first_seen, import_last_seen, last_modified`

func (p *PostgresStore) SaveObservation(ctx context.Context, obs *models.Observation) error {
	if p.pool == nil {
		return ErrNotConnected
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO observations (`+observationColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,
			$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32,$33,$34,$35,$36,$37,$38,$39,$40,$41)
		ON CONFLICT (id) DO UPDATE SET
			product_id = EXCLUDED.product_id,
			branch = EXCLUDED.branch,
			service = EXCLUDED.service,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			recommendation = EXCLUDED.recommendation,
			vulnerability_id = EXCLUDED.vulnerability_id,
			cwe = EXCLUDED.cwe,
			component_name = EXCLUDED.component_name,
			component_version = EXCLUDED.component_version,
			docker_image_name = EXCLUDED.docker_image_name,
			endpoint_url = EXCLUDED.endpoint_url,
			service_name = EXCLUDED.service_name,
			source_file = EXCLUDED.source_file,
			source_line_start = EXCLUDED.source_line_start,
			source_line_end = EXCLUDED.source_line_end,
			cvss3_score = EXCLUDED.cvss3_score,
			cvss3_vector = EXCLUDED.cvss3_vector,
			parser_severity = EXCLUDED.parser_severity,
			rule_severity = EXCLUDED.rule_severity,
			assessment_severity = EXCLUDED.assessment_severity,
			parser_status = EXCLUDED.parser_status,
			rule_status = EXCLUDED.rule_status,
			assessment_status = EXCLUDED.assessment_status,
			parser_vex_justification = EXCLUDED.parser_vex_justification,
			rule_vex_justification = EXCLUDED.rule_vex_justification,
			assessment_vex_justification = EXCLUDED.assessment_vex_justification,
			current_severity = EXCLUDED.current_severity,
			current_status = EXCLUDED.current_status,
			current_vex_justification = EXCLUDED.current_vex_justification,
			risk_acceptance_expiry = EXCLUDED.risk_acceptance_expiry,
			fingerprint = EXCLUDED.fingerprint,
			scanner = EXCLUDED.scanner,
			rule_name = EXCLUDED.rule_name,
			manually_created = EXCLUDED.manually_created,
			upload_filename = EXCLUDED.upload_filename,
			api_configuration = EXCLUDED.api_configuration,
			first_seen = EXCLUDED.first_seen,
			import_last_seen = EXCLUDED.import_last_seen,
			last_modified = EXCLUDED.last_modified`,
		obs.ID, obs.Scope.ProductID, obs.Scope.Branch, obs.Scope.Service,
		obs.Title, obs.Description, obs.Recommendation,
		obs.VulnerabilityID, obs.CWE, obs.ComponentName, obs.ComponentVersion,
		obs.DockerImageName, obs.EndpointURL, obs.ServiceName, obs.SourceFile,
		obs.SourceLineStart, obs.SourceLineEnd, obs.CVSS3Score, obs.CVSS3Vector,
		obs.ParserSeverity, obs.RuleSeverity, obs.AssessmentSeverity,
		obs.ParserStatus, obs.RuleStatus, obs.AssessmentStatus,
		obs.ParserVexJustification, obs.RuleVexJustification, obs.AssessmentVexJustification,
		obs.CurrentSeverity, obs.CurrentStatus, obs.CurrentVexJustification,
		obs.RiskAcceptanceExpiry, obs.Fingerprint, obs.Scanner, obs.RuleName,
		obs.ManuallyCreated, obs.UploadFilename, obs.APIConfiguration,
		obs.FirstSeen, obs.ImportLastSeen, obs.LastModified,
	)
	if err != nil {
		return fmt.Errorf("failed to save observation: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetObservation(ctx context.Context, id string) (*models.Observation, error) {
	if p.pool == nil {
		return nil, ErrNotConnected
	}

	row := p.pool.QueryRow(ctx,
		`SELECT `+observationColumns+` FROM observations WHERE id = $1`, id)

	obs, err := scanObservation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get observation: %w", err)
	}
	return obs, nil
}

func (p *PostgresStore) ListByScope(ctx context.Context, scope models.Scope, scannerFamily string) ([]*models.Observation, error) {
	if p.pool == nil {
		return nil, ErrNotConnected
	}

	// Scanner family matching mirrors models.ScannerFamily: the name up
	// to the first "/".
	rows, err := p.pool.Query(ctx, `
		SELECT `+observationColumns+` FROM observations
		WHERE product_id = $1 AND branch = $2 AND service = $3
			AND split_part(scanner, '/', 1) = $4
		ORDER BY id`,
		scope.ProductID, scope.Branch, scope.Service, scannerFamily)
	if err != nil {
		return nil, fmt.Errorf("failed to list observations in scope: %w", err)
	}
	defer rows.Close()

	return collectObservations(rows)
}

func (p *PostgresStore) ListOpenByProductBranch(ctx context.Context, productID, branch string) ([]*models.Observation, error) {
	if p.pool == nil {
		return nil, ErrNotConnected
	}

	rows, err := p.pool.Query(ctx, `
		SELECT `+observationColumns+` FROM observations
		WHERE product_id = $1 AND branch = $2 AND current_status = $3
		ORDER BY id`,
		productID, branch, models.StatusOpen)
	if err != nil {
		return nil, fmt.Errorf("failed to list open observations: %w", err)
	}
	defer rows.Close()

	return collectObservations(rows)
}

func (p *PostgresStore) CountOpenBySeverity(ctx context.Context, productID, branch string) (models.SeverityCounts, error) {
	var counts models.SeverityCounts
	if p.pool == nil {
		return counts, ErrNotConnected
	}

	rows, err := p.pool.Query(ctx, `
		SELECT current_severity, COUNT(*) FROM observations
		WHERE product_id = $1 AND branch = $2 AND current_status = $3
		GROUP BY current_severity`,
		productID, branch, models.StatusOpen)
	if err != nil {
		return counts, fmt.Errorf("failed to count observations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var severity models.Severity
		var count int
		if err := rows.Scan(&severity, &count); err != nil {
			return counts, fmt.Errorf("failed to scan count: %w", err)
		}
		*counts.Bucket(severity) = count
	}
	return counts, rows.Err()
}

func scanObservation(row pgx.Row) (*models.Observation, error) {
	var obs models.Observation
	err := row.Scan(
		&obs.ID, &obs.Scope.ProductID, &obs.Scope.Branch, &obs.Scope.Service,
		&obs.Title, &obs.Description, &obs.Recommendation,
		&obs.VulnerabilityID, &obs.CWE, &obs.ComponentName, &obs.ComponentVersion,
		&obs.DockerImageName, &obs.EndpointURL, &obs.ServiceName, &obs.SourceFile,
		&obs.SourceLineStart, &obs.SourceLineEnd, &obs.CVSS3Score, &obs.CVSS3Vector,
		&obs.ParserSeverity, &obs.RuleSeverity, &obs.AssessmentSeverity,
		&obs.ParserStatus, &obs.RuleStatus, &obs.AssessmentStatus,
		&obs.ParserVexJustification, &obs.RuleVexJustification, &obs.AssessmentVexJustification,
		&obs.CurrentSeverity, &obs.CurrentStatus, &obs.CurrentVexJustification,
		&obs.RiskAcceptanceExpiry, &obs.Fingerprint, &obs.Scanner, &obs.RuleName,
		&obs.ManuallyCreated, &obs.UploadFilename, &obs.APIConfiguration,
		&obs.FirstSeen, &obs.ImportLastSeen, &obs.LastModified,
	)
	if err != nil {
		return nil, err
	}
	return &obs, nil
}

func collectObservations(rows pgx.Rows) ([]*models.Observation, error) {
	var result []*models.Observation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		result = append(result, obs)
	}
	return result, rows.Err()
}

func (p *PostgresStore) AppendLog(ctx context.Context, entry *models.ObservationLog) error {
	if p.pool == nil {
		return ErrNotConnected
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO observation_logs (
			id, observation_id, severity, status, vex_justification,
			previous_severity, previous_status, previous_vex_justification,
			risk_acceptance_expiry, previous_risk_acceptance_expiry,
			risk_acceptance_expiry_changed, comment, username,
			approval_status, approval_user, approval_remark, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		entry.ID, entry.ObservationID, entry.Severity, entry.Status, entry.VexJustification,
		entry.PreviousSeverity, entry.PreviousStatus, entry.PreviousVexJustification,
		entry.RiskAcceptanceExpiry, entry.PreviousRiskAcceptanceExpiry,
		entry.RiskAcceptanceExpiryChanged, entry.Comment, entry.User,
		entry.ApprovalStatus, entry.ApprovalUser, entry.ApprovalRemark, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append log entry: %w", err)
	}
	return nil
}

func (p *PostgresStore) UpdateLog(ctx context.Context, entry *models.ObservationLog) error {
	if p.pool == nil {
		return ErrNotConnected
	}

	tag, err := p.pool.Exec(ctx, `
		UPDATE observation_logs
		SET approval_status = $2, approval_user = $3, approval_remark = $4
		WHERE id = $1`,
		entry.ID, entry.ApprovalStatus, entry.ApprovalUser, entry.ApprovalRemark,
	)
	if err != nil {
		return fmt.Errorf("failed to update log entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const logColumns = `
	id, observation_id, severity, status, vex_justification,
	previous_severity, previous_status, previous_vex_justification,
	risk_acceptance_expiry, previous_risk_acceptance_expiry,
	risk_acceptance_expiry_changed, comment, username,
	approval_status, approval_user, approval_remark, created_at`

func (p *PostgresStore) GetLog(ctx context.Context, id string) (*models.ObservationLog, error) {
	if p.pool == nil {
		return nil, ErrNotConnected
	}

	row := p.pool.QueryRow(ctx,
		`SELECT `+logColumns+` FROM observation_logs WHERE id = $1`, id)

	entry, err := scanLog(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get log entry: %w", err)
	}
	return entry, nil
}

func (p *PostgresStore) LatestLog(ctx context.Context, observationID string) (*models.ObservationLog, error) {
	if p.pool == nil {
		return nil, ErrNotConnected
	}

	row := p.pool.QueryRow(ctx, `
		SELECT `+logColumns+` FROM observation_logs
		WHERE observation_id = $1
		ORDER BY created_at DESC, id DESC LIMIT 1`, observationID)

	entry, err := scanLog(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest log entry: %w", err)
	}
	return entry, nil
}

func (p *PostgresStore) ListLogs(ctx context.Context, observationID string) ([]*models.ObservationLog, error) {
	if p.pool == nil {
		return nil, ErrNotConnected
	}

	rows, err := p.pool.Query(ctx, `
		SELECT `+logColumns+` FROM observation_logs
		WHERE observation_id = $1
		ORDER BY created_at, id`, observationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list log entries: %w", err)
	}
	defer rows.Close()

	var result []*models.ObservationLog
	for rows.Next() {
		entry, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

func scanLog(row pgx.Row) (*models.ObservationLog, error) {
	var entry models.ObservationLog
	err := row.Scan(
		&entry.ID, &entry.ObservationID, &entry.Severity, &entry.Status, &entry.VexJustification,
		&entry.PreviousSeverity, &entry.PreviousStatus, &entry.PreviousVexJustification,
		&entry.RiskAcceptanceExpiry, &entry.PreviousRiskAcceptanceExpiry,
		&entry.RiskAcceptanceExpiryChanged, &entry.Comment, &entry.User,
		&entry.ApprovalStatus, &entry.ApprovalUser, &entry.ApprovalRemark, &entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (p *PostgresStore) ReplaceDuplicates(ctx context.Context, observationID string, otherIDs []string) error {
	if p.pool == nil {
		return ErrNotConnected
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		DELETE FROM duplicate_links
		WHERE observation_a = $1 OR observation_b = $1`, observationID)
	if err != nil {
		return fmt.Errorf("failed to remove duplicate links: %w", err)
	}

	for _, other := range otherIDs {
		if other == observationID {
			continue
		}
		a, b := observationID, other
		if b < a {
			a, b = b, a
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO duplicate_links (observation_a, observation_b)
			VALUES ($1, $2) ON CONFLICT DO NOTHING`, a, b)
		if err != nil {
			return fmt.Errorf("failed to insert duplicate link: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (p *PostgresStore) ListDuplicates(ctx context.Context, observationID string) ([]string, error) {
	if p.pool == nil {
		return nil, ErrNotConnected
	}

	rows, err := p.pool.Query(ctx, `
		SELECT observation_a, observation_b FROM duplicate_links
		WHERE observation_a = $1 OR observation_b = $1
		ORDER BY observation_a, observation_b`, observationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list duplicate links: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var a, b string
		if err := rows.Scan(&a, &b); err != nil {
			return nil, fmt.Errorf("failed to scan duplicate link: %w", err)
		}
		if a == observationID {
			result = append(result, b)
		} else {
			result = append(result, a)
		}
	}
	return result, rows.Err()
}

func (p *PostgresStore) HealthCheck(ctx context.Context) error {
	if p.pool == nil {
		return ErrNotConnected
	}

	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		p.pool = nil
	}
	return nil
}
