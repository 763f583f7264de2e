// obligatory // comment

/*
Package mandelring renders the Mandelbrot set to a 256-colour terminal with rows computed in
parallel, while still writing them to the terminal strictly in order.

Broadly, the pieces belong to a few groups:

- The order ring: [Gate], [OrderRing], [SharedArena]
- The workers: [RowAssigner], [Worker], [Emitter], [Render]
- Run management: [WorkerGroup], [InterruptHandler], [StackTrace], [SetLogger]

# The order ring

Each row is expensive and differently so, but a terminal stream is not random-access: row r must be
written after row r-1, whichever worker finished first. Workers are striped over rows (worker w of N
owns rows w, w+N, w+2N, ...) and an [OrderRing] of N gates passes a single write permission around.
Slot 0 starts open and every other slot closed; a worker acquires slot r mod N right before writing
row r and releases slot (r+1) mod N right after. By induction the open slot always belongs to the
smallest row not yet written.

Gates come in three flavours: a mutex and condition variable, a one-token channel, and a futex word
in a [SharedArena] that other processes can map. The worker loop is the same for all of them.

# Topologies

[Threads] runs the workers as goroutines. [Processes] re-executes the current binary once per
worker, passing the arena as an inherited file and everything else as explicit spawn parameters;
such programs must call [IsWorkerProcess] and [RunWorkerProcess] at the top of main.

# Failure

Every failure is fatal. The first error aborts the ring, so workers blocked on a gate return
[ErrAborted] instead of waiting forever; the coordinator joins every worker and reports the root
cause. An interrupt is handled the same way by the command, which then resets the terminal colour
before exiting.
*/
package mandelring
