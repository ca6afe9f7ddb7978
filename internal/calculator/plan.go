package calculator

import (
	"errors"
	"strconv"
)

// Operand аргумент шага: число или ссылка на результат другого шага
type Operand struct {
	Value float64
	Step  int // номер шага-источника, 0 если аргумент задан числом
}

func (o Operand) Ready() bool { return o.Step == 0 }

// Step одна операция выражения. Номера шагов начинаются с 1
// и идут в порядке обратной польской записи, поэтому источник
// всегда имеет меньший номер, чем зависимый шаг.
type Step struct {
	ID        int
	Operation string
	Arg1      Operand
	Arg2      Operand
}

// Plan разбивает выражение на шаги. Выражение из одного числа дает
// пустой план и готовое значение. Для выражения с делением на ноль
// план строится, а значение не определено.
func Plan(expr string) ([]Step, float64, error) {
	tokens, err := Tokenize(expr)
	if err != nil {
		return nil, 0, err
	}
	rpn, err := ToRPN(tokens)
	if err != nil {
		return nil, 0, err
	}
	// деление на ноль обнаружится при выполнении шага, выражение получит статус error
	value, err := EvaluateRPN(rpn)
	if err != nil && !errors.Is(err, ErrDivisionByZero) {
		return nil, 0, err
	}

	var steps []Step
	var stack []Operand
	for _, token := range rpn {
		switch token.Type {
		case Number:
			num, _ := strconv.ParseFloat(token.Value, 64)
			stack = append(stack, Operand{Value: num})
		case Operator:
			if len(stack) < 2 {
				return nil, 0, ErrInvalidExpression
			}
			step := Step{
				ID:        len(steps) + 1,
				Operation: token.Value,
				Arg1:      stack[len(stack)-2],
				Arg2:      stack[len(stack)-1],
			}
			stack = append(stack[:len(stack)-2], Operand{Step: step.ID})
			steps = append(steps, step)
		}
	}

	return steps, value, nil
}
