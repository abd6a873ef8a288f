package capability

import (
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"starmcp-go/internal/capability/sqlstore"
	"starmcp-go/internal/errs"
)

// PostgresModule is a hand-built module over sqlstore, analogous to sqlite
// but keyed by connection string, per spec.md §4.2.
func PostgresModule() *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "postgres",
		Members: starlark.StringDict{
			"list_tables":    starlark.NewBuiltin("postgres.list_tables", postgresListTables),
			"describe_table": starlark.NewBuiltin("postgres.describe_table", postgresDescribeTable),
			"query":          starlark.NewBuiltin("postgres.query", postgresQuery),
			"execute":        starlark.NewBuiltin("postgres.execute", postgresExecute),
		},
	}
}

func postgresListTables(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var dsn string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "connection_string", &dsn); err != nil {
		return nil, err
	}
	ctx := CurrentContext(thread)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db, err := sqlstore.PostgresConn(dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrStorageError, "postgres.list_tables: %v", err)
	}
	tables, err := sqlstore.ListTables(ctx, db, "postgres")
	if err != nil {
		return nil, errs.Wrap(errs.ErrStorageError, "postgres.list_tables: %v", err)
	}
	out := starlark.NewList(nil)
	for _, t := range tables {
		_ = out.Append(starlark.String(t))
	}
	return out, nil
}

func postgresDescribeTable(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var dsn, name string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "connection_string", &dsn, "name", &name); err != nil {
		return nil, err
	}
	ctx := CurrentContext(thread)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db, err := sqlstore.PostgresConn(dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrStorageError, "postgres.describe_table(%q): %v", name, err)
	}
	rows, err := sqlstore.DescribeTable(ctx, db, "postgres", name)
	if err != nil {
		return nil, errs.Wrap(errs.ErrStorageError, "postgres.describe_table(%q): %v", name, err)
	}
	return rowsToStarlark(nil, rows), nil
}

func postgresQuery(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		dsn    string
		sql    string
		params *starlark.List
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "connection_string", &dsn, "sql", &sql, "params?", &params); err != nil {
		return nil, err
	}
	ctx := CurrentContext(thread)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db, err := sqlstore.PostgresConn(dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrStorageError, "postgres.query: %v", err)
	}
	boundParams, err := paramsToGo(params)
	if err != nil {
		return nil, err
	}
	columns, rows, err := sqlstore.Query(ctx, db, sql, boundParams)
	if err != nil {
		return nil, errs.Wrap(errs.ErrStorageError, "postgres.query: %v", err)
	}
	return rowsToStarlark(columns, rows), nil
}

func postgresExecute(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		dsn    string
		sql    string
		params *starlark.List
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "connection_string", &dsn, "sql", &sql, "params?", &params); err != nil {
		return nil, err
	}
	ctx := CurrentContext(thread)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db, err := sqlstore.PostgresConn(dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrStorageError, "postgres.execute: %v", err)
	}
	boundParams, err := paramsToGo(params)
	if err != nil {
		return nil, err
	}
	affected, err := sqlstore.Execute(ctx, db, sql, boundParams)
	if err != nil {
		return nil, errs.Wrap(errs.ErrStorageError, "postgres.execute: %v", err)
	}
	return starlark.MakeInt64(affected), nil
}
