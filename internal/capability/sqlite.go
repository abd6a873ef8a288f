package capability

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"starmcp-go/internal/bridge"
	"starmcp-go/internal/capability/sqlstore"
	"starmcp-go/internal/errs"
)

// SQLiteModule is a hand-built module over sqlstore, keyed by file path.
func SQLiteModule() *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "sqlite",
		Members: starlark.StringDict{
			"list_tables":    starlark.NewBuiltin("sqlite.list_tables", sqliteListTables),
			"describe_table": starlark.NewBuiltin("sqlite.describe_table", sqliteDescribeTable),
			"query":          starlark.NewBuiltin("sqlite.query", sqliteQuery),
			"execute":        starlark.NewBuiltin("sqlite.execute", sqliteExecute),
		},
	}
}

func sqliteListTables(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "path", &path); err != nil {
		return nil, err
	}
	ctx := CurrentContext(thread)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db, err := sqlstore.SQLiteConn(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrStorageError, "sqlite.list_tables(%q): %v", path, err)
	}
	tables, err := sqlstore.ListTables(ctx, db, "sqlite")
	if err != nil {
		return nil, errs.Wrap(errs.ErrStorageError, "sqlite.list_tables(%q): %v", path, err)
	}
	out := starlark.NewList(nil)
	for _, t := range tables {
		_ = out.Append(starlark.String(t))
	}
	return out, nil
}

func sqliteDescribeTable(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path, name string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "path", &path, "name", &name); err != nil {
		return nil, err
	}
	ctx := CurrentContext(thread)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db, err := sqlstore.SQLiteConn(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrStorageError, "sqlite.describe_table(%q): %v", path, err)
	}
	rows, err := sqlstore.DescribeTable(ctx, db, "sqlite", name)
	if err != nil {
		return nil, errs.Wrap(errs.ErrStorageError, "sqlite.describe_table(%q, %q): %v", path, name, err)
	}
	return rowsToStarlark(nil, rows), nil
}

func sqliteQuery(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		path   string
		sql    string
		params *starlark.List
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "path", &path, "sql", &sql, "params?", &params); err != nil {
		return nil, err
	}
	ctx := CurrentContext(thread)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db, err := sqlstore.SQLiteConn(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrStorageError, "sqlite.query(%q): %v", path, err)
	}
	boundParams, err := paramsToGo(params)
	if err != nil {
		return nil, err
	}
	columns, rows, err := sqlstore.Query(ctx, db, sql, boundParams)
	if err != nil {
		return nil, errs.Wrap(errs.ErrStorageError, "sqlite.query(%q): %v", path, err)
	}
	return rowsToStarlark(columns, rows), nil
}

func sqliteExecute(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		path   string
		sql    string
		params *starlark.List
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "path", &path, "sql", &sql, "params?", &params); err != nil {
		return nil, err
	}
	ctx := CurrentContext(thread)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db, err := sqlstore.SQLiteConn(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrStorageError, "sqlite.execute(%q): %v", path, err)
	}
	boundParams, err := paramsToGo(params)
	if err != nil {
		return nil, err
	}
	affected, err := sqlstore.Execute(ctx, db, sql, boundParams)
	if err != nil {
		return nil, errs.Wrap(errs.ErrStorageError, "sqlite.execute(%q): %v", path, err)
	}
	return starlark.MakeInt64(affected), nil
}

func paramsToGo(params *starlark.List) ([]any, error) {
	if params == nil {
		return nil, nil
	}
	out := make([]any, 0, params.Len())
	iter := params.Iterate()
	defer iter.Done()
	var v starlark.Value
	for iter.Next(&v) {
		jv, err := bridge.ToJSON(v)
		if err != nil {
			return nil, fmt.Errorf("params: %w", err)
		}
		out = append(out, jv)
	}
	return out, nil
}

func rowsToStarlark(columns []string, rows []sqlstore.Row) *starlark.List {
	out := starlark.NewList(nil)
	for _, row := range rows {
		d := starlark.NewDict(len(row))
		if len(columns) > 0 {
			for _, col := range columns {
				_ = d.SetKey(starlark.String(col), bridge.FromJSON(row[col]))
			}
		} else {
			for k, v := range row {
				_ = d.SetKey(starlark.String(k), bridge.FromJSON(v))
			}
		}
		_ = out.Append(d)
	}
	return out
}
