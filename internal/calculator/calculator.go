package calculator

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

var (
	ErrEmptyExpression   = errors.New("empty expression")
	ErrInvalidCharacter  = errors.New("invalid character")
	ErrMismatchedParens  = errors.New("mismatched parentheses")
	ErrInvalidExpression = errors.New("invalid expression")
	ErrDivisionByZero    = errors.New("division by zero")
)

type TokenType string

const (
	Number     TokenType = "number"
	Operator   TokenType = "operator"
	LeftParen  TokenType = "left_paren"
	RightParen TokenType = "right_paren"
)

type Token struct {
	Type  TokenType
	Value string
}

var precedence = map[string]int{
	"+": 1,
	"-": 1,
	"*": 2,
	"/": 2,
}

// Calc вычисляет выражение целиком, без разбиения на задачи
func Calc(expr string) (float64, error) {
	tokens, err := Tokenize(expr)
	if err != nil {
		return 0, err
	}
	rpn, err := ToRPN(tokens)
	if err != nil {
		return 0, err
	}
	return EvaluateRPN(rpn)
}

// Tokenize разбивает выражение на токены. Минус в начале выражения
// или после открывающей скобки считается знаком числа.
func Tokenize(expr string) ([]Token, error) {
	expr = strings.ReplaceAll(expr, " ", "")
	if expr == "" {
		return nil, ErrEmptyExpression
	}

	var tokens []Token
	for i := 0; i < len(expr); i++ {
		char := expr[i]

		switch {
		case char == '(':
			tokens = append(tokens, Token{Type: LeftParen, Value: "("})
		case char == ')':
			tokens = append(tokens, Token{Type: RightParen, Value: ")"})
		case char == '-' && unaryPosition(tokens) && i+1 < len(expr) && isNumberStart(expr[i+1]):
			j := scanNumber(expr, i+1)
			tokens = append(tokens, Token{Type: Number, Value: expr[i:j]})
			i = j - 1
		case char == '+' || char == '-' || char == '*' || char == '/':
			tokens = append(tokens, Token{Type: Operator, Value: string(char)})
		case isNumberStart(char):
			j := scanNumber(expr, i)
			tokens = append(tokens, Token{Type: Number, Value: expr[i:j]})
			i = j - 1
		default:
			return nil, fmt.Errorf("%w: %c", ErrInvalidCharacter, char)
		}
	}

	return tokens, nil
}

func unaryPosition(tokens []Token) bool {
	return len(tokens) == 0 || tokens[len(tokens)-1].Type == LeftParen
}

func isNumberStart(c byte) bool {
	return unicode.IsDigit(rune(c)) || c == '.'
}

func scanNumber(expr string, i int) int {
	for i < len(expr) && isNumberStart(expr[i]) {
		i++
	}
	return i
}

// ToRPN переводит токены в обратную польскую запись (алгоритм сортировочной станции)
func ToRPN(tokens []Token) ([]Token, error) {
	var output []Token
	var stack []Token

	for _, token := range tokens {
		switch token.Type {
		case Number:
			output = append(output, token)
		case Operator:
			for len(stack) > 0 && stack[len(stack)-1].Type == Operator &&
				precedence[stack[len(stack)-1].Value] >= precedence[token.Value] {
				output = append(output, stack[len(stack)-1])
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, token)
		case LeftParen:
			stack = append(stack, token)
		case RightParen:
			found := false
			for len(stack) > 0 {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if top.Type == LeftParen {
					found = true
					break
				}
				output = append(output, top)
			}
			if !found {
				return nil, ErrMismatchedParens
			}
		}
	}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top.Type == LeftParen {
			return nil, ErrMismatchedParens
		}
		output = append(output, top)
	}

	return output, nil
}

func EvaluateRPN(rpn []Token) (float64, error) {
	var stack []float64

	for _, token := range rpn {
		switch token.Type {
		case Number:
			num, err := strconv.ParseFloat(token.Value, 64)
			if err != nil {
				return 0, fmt.Errorf("%w: некорректное число %s", ErrInvalidExpression, token.Value)
			}
			stack = append(stack, num)
		case Operator:
			if len(stack) < 2 {
				return 0, ErrInvalidExpression
			}
			a, b := stack[len(stack)-2], stack[len(stack)-1]
			stack = stack[:len(stack)-2]

			result, err := Apply(token.Value, a, b)
			if err != nil {
				return 0, err
			}
			stack = append(stack, result)
		}
	}

	if len(stack) != 1 {
		return 0, ErrInvalidExpression
	}
	return stack[0], nil
}

// Apply выполняет одну операцию
func Apply(op string, a, b float64) (float64, error) {
	switch op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		if b == 0 {
			return 0, ErrDivisionByZero
		}
		return a / b, nil
	}
	return 0, fmt.Errorf("%w: неизвестная операция %q", ErrInvalidExpression, op)
}
