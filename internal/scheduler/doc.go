// Package scheduler запускает планы по cron-расписаниям.
//
// Scheduler хранит расписания из конфигурации и на каждом тике создаёт
// запуски в статусе PENDING для расписаний, время которых наступило.
// Выполняет запуски worker: по сообщению plan.pending или через polling.
//
//	sched, err := scheduler.New(scheduler.Config{
//	    Schedules: schedules,
//	    Runs:      runStore,
//	    Publisher: publisher, // опционально
//	    Notifier:  worker,    // опционально
//	    Logger:    logger,
//	})
//	go sched.Run(ctx, 30*time.Second)
package scheduler
