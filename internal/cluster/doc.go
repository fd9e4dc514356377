// Package cluster — исполнение job/service run'ов в Kubernetes.
//
// Converter превращает скомпилированную спецификацию в Manifest
// (Job для job, Deployment + Service для service). Executor создаёт,
// останавливает и подчищает объекты кластера. Все объекты run'а
// помечены label'ом conveyor.io/run-id, по нему и происходит очистка.
package cluster
