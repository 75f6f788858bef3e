package payroll

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// =============================================================================
// EXPRESSION CONDITION - CEL predicate over a record and its context
// =============================================================================

// Expression variables:
//
//	hours          double        record duration
//	clock_in_hour  int           0-23, in the evaluation clock's zone
//	weekday        int           0 = Sunday
//	employee_id    string
//	roles          list(string)  role names of the record owner
//	total_records  int           owner's record count in the run
var (
	celEnvOnce sync.Once
	celEnv     *cel.Env
	celEnvErr  error
)

func expressionEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("hours", cel.DoubleType),
			cel.Variable("clock_in_hour", cel.IntType),
			cel.Variable("weekday", cel.IntType),
			cel.Variable("employee_id", cel.StringType),
			cel.Variable("roles", cel.ListType(cel.StringType)),
			cel.Variable("total_records", cel.IntType),
		)
	})
	return celEnv, celEnvErr
}

// CompileExpression type-checks a CEL predicate. The expression must
// evaluate to a bool.
func CompileExpression(expr string) (cel.Program, error) {
	env, err := expressionEnv()
	if err != nil {
		return nil, fmt.Errorf("expression environment: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression must return bool, got %s", ast.OutputType())
	}
	return env.Program(ast, cel.CostLimit(100000))
}

// Compile prepares the expression predicate, if any.
func (cs *ConditionSet) Compile() error {
	if cs.Expression == "" {
		cs.program = nil
		return nil
	}
	prg, err := CompileExpression(cs.Expression)
	if err != nil {
		return err
	}
	cs.program = prg
	return nil
}

// evalExpression runs the compiled predicate. Evaluation errors and
// non-bool results count as no match.
func evalExpression(prg cel.Program, rec AttendanceRecord, ctx EvalContext) bool {
	roles := ctx.Roles
	if roles == nil {
		roles = []string{}
	}
	hours, _ := rec.ElapsedHours().Float64()
	out, _, err := prg.Eval(map[string]any{
		"hours":         hours,
		"clock_in_hour": int64(ctx.Clock.Hour(rec.ClockIn)),
		"weekday":       int64(ctx.Clock.Weekday(rec.ClockIn)),
		"employee_id":   string(rec.EmployeeID),
		"roles":         roles,
		"total_records": int64(ctx.TotalRecords),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
