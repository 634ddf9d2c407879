package config

// WorkerKeyStruct names the Redis lists consumed by background workers.
type WorkerKeyStruct struct {
	PersistAnswersQueue    string
	PersistViolationsQueue string
	FinalizeSessionsQueue  string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAnswersQueue:    "persist_answers_queue",
	PersistViolationsQueue: "persist_violations_queue",
	FinalizeSessionsQueue:  "finalize_sessions_queue",
}
