package calculator

import (
	"errors"
	"testing"
)

func TestCalc(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		want    float64
		wantErr error
	}{
		{name: "простое сложение", expr: "3+3", want: 6},
		{name: "приоритет операций", expr: "2+2*2", want: 6},
		{name: "скобки", expr: "(2+2)*2", want: 8},
		{name: "пробелы", expr: " 10 / 4 ", want: 2.5},
		{name: "отрицательное число в начале", expr: "-3+5", want: 2},
		{name: "отрицательное число в скобках", expr: "2*(-3)", want: -6},
		{name: "одно число", expr: "42", want: 42},
		{name: "деление на ноль", expr: "1/0", wantErr: ErrDivisionByZero},
		{name: "незакрытая скобка", expr: "(1+2", wantErr: ErrMismatchedParens},
		{name: "лишняя скобка", expr: "1+2)", wantErr: ErrMismatchedParens},
		{name: "недопустимый символ", expr: "2+a", wantErr: ErrInvalidCharacter},
		{name: "пустое выражение", expr: "  ", wantErr: ErrEmptyExpression},
		{name: "не хватает операнда", expr: "2+", wantErr: ErrInvalidExpression},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Calc(tt.expr)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Calc(%q) ошибка = %v, want %v", tt.expr, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Calc(%q) неожиданная ошибка: %v", tt.expr, err)
			}
			if got != tt.want {
				t.Errorf("Calc(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestPlan(t *testing.T) {
	steps, value, err := Plan("2+3*4")
	if err != nil {
		t.Fatal(err)
	}
	if value != 14 {
		t.Errorf("значение = %v, want 14", value)
	}
	if len(steps) != 2 {
		t.Fatalf("шагов = %d, want 2", len(steps))
	}

	mul, add := steps[0], steps[1]
	if mul.Operation != "*" || mul.Arg1.Value != 3 || mul.Arg2.Value != 4 || !mul.Arg1.Ready() {
		t.Errorf("первый шаг = %+v", mul)
	}
	if add.Operation != "+" || add.Arg1.Value != 2 || add.Arg2.Step != mul.ID {
		t.Errorf("второй шаг = %+v", add)
	}
}

func TestPlanSingleNumber(t *testing.T) {
	steps, value, err := Plan("7")
	if err != nil {
		t.Fatal(err)
	}
	if len(steps) != 0 || value != 7 {
		t.Errorf("Plan(7) = %v, %v", steps, value)
	}
}

func TestPlanDivisionByZero(t *testing.T) {
	steps, _, err := Plan("1/(2-2)")
	if err != nil {
		t.Fatalf("план должен строиться: %v", err)
	}
	if len(steps) != 2 || steps[1].Operation != "/" || steps[1].Arg2.Step != 1 {
		t.Errorf("шаги = %+v", steps)
	}
}
