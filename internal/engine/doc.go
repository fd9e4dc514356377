// Package engine содержит разрешение зависимостей pipeline и admission control.
//
// Включает:
//   - dag.go       — построение и обход графа членов pipeline
//   - resolver.go  — чтение run'ов и рёбер из хранилища, upstream/downstream
//   - admission.go — сколько дочерних run'ов pipeline можно запустить за тик
//
// Engine отвечает за понимание структуры pipeline и определение
// порядка запуска её членов на основе их зависимостей.
package engine
