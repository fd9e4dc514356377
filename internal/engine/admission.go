package engine

import "math"

// Unbounded — результат ComputeStartable, когда ограничений нет.
const Unbounded = math.MaxInt

// ComputeStartable возвращает, сколько ожидающих дочерних run'ов pipeline
// можно запустить за один тик.
//
// concurrency < 0 — без лимита параллельности. maxBudget == nil — без бюджета.
// Исчерпанный или неположительный бюджет даёт 0.
func ComputeStartable(concurrency, consumed int, maxBudget *int) int {
	if maxBudget == nil {
		if concurrency < 0 {
			return Unbounded
		}
		return max(0, concurrency-consumed)
	}

	budget := *maxBudget
	if budget <= 0 || consumed >= budget {
		return 0
	}
	if concurrency < 0 {
		return budget - consumed
	}
	return max(0, min(concurrency-consumed, budget-consumed))
}
