// Package worker выполняет асинхронные запуски планов.
//
// Запуск создаётся в статусе PENDING (через API или scheduler) и попадает
// к worker'у двумя путями:
//
//   - сообщение plan.pending из очереди plans.pending (если настроен RabbitMQ)
//   - polling: периодический ListPending по хранилищу запусков
//
// Один и тот же запуск может прийти обоими путями одновременно, поэтому
// worker держит множество активных запусков и берёт каждый не больше одного раза.
//
// Обработка запуска:
//
//  1. Загрузка из хранилища, проверка статуса PENDING
//  2. MarkRunning и сохранение
//  3. Выполнение плана через PlanRunner (orchestrator)
//  4. MarkFinished и сохранение результата
//  5. Публикация plan.finished (если есть publisher)
//
// Без RabbitMQ worker работает только на polling и Notify.
package worker
